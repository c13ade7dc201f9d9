package model

import "time"

type InterfaceSnapshot struct {
	Name   string     `json:"name"`
	Status LinkStatus `json:"status"`
	In     uint64     `json:"delta_in_bytes"`
	Out    uint64     `json:"delta_out_bytes"`
}

type DeviceSnapshot struct {
	Device     string              `json:"device"`
	Outcome    Outcome             `json:"outcome"`
	Error      string              `json:"error,omitempty"`
	CPU        *float64            `json:"cpu,omitempty"`
	RAMPercent *float64            `json:"ram_percent,omitempty"`
	Interfaces []InterfaceSnapshot `json:"interfaces,omitempty"`
}

// CycleSnapshot is transport-agnostic framing for one completed poll cycle.
type CycleSnapshot struct {
	CycleID       string           `json:"cycle_id"`
	Collector     string           `json:"collector"`
	Timestamp     time.Time        `json:"timestamp"`
	TimestampUnix int64            `json:"timestamp_unix"`
	DurationMs    int64            `json:"duration_ms"`
	Devices       []DeviceSnapshot `json:"devices"`
}
