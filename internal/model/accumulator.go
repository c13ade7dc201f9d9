package model

type InterfaceAccumulator struct {
	TotalIn       uint64     `json:"total_in"`
	TotalOut      uint64     `json:"total_out"`
	UpEvents      uint64     `json:"up_events"`
	DownEvents    uint64     `json:"down_events"`
	CurrentStatus LinkStatus `json:"current_status"`
}

type DeviceAccumulator struct {
	CPUSum     float64                          `json:"cpu_sum"`
	CPUCount   uint64                           `json:"cpu_count"`
	RAMSum     float64                          `json:"ram_sum"`
	RAMCount   uint64                           `json:"ram_count"`
	Interfaces map[string]*InterfaceAccumulator `json:"interfaces"`
}

// DailyAccumulator holds running totals for LastResetDate, keyed by device then interface name.
type DailyAccumulator struct {
	LastResetDate string                        `json:"last_reset_date"`
	Devices       map[string]*DeviceAccumulator `json:"devices"`
}

type ScriptState struct {
	LastReportedMonth string `json:"last_reported_month"`
}
