package model

type InterfaceDaySummary struct {
	TotalInBytes  uint64     `json:"total_in_bytes"`
	TotalOutBytes uint64     `json:"total_out_bytes"`
	UpEvents      uint64     `json:"up_events"`
	DownEvents    uint64     `json:"down_events"`
	FinalStatus   LinkStatus `json:"final_status"`
}

// DailySummaryRecord is one line of logs/<device>/<yyyy-mm>/daily_summary.jsonl.
// AvgCPU and AvgRAM are nil when no sample was collected that day.
type DailySummaryRecord struct {
	Date       string                         `json:"date"`
	Device     string                         `json:"device"`
	AvgCPU     *float64                       `json:"avg_cpu"`
	AvgRAM     *float64                       `json:"avg_ram"`
	Samples    uint64                         `json:"samples"`
	Interfaces map[string]InterfaceDaySummary `json:"interfaces"`
}
