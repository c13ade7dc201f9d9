package model

type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeFailed      Outcome = "failed"
)

type InterfaceEvent string

const (
	EventNone InterfaceEvent = ""
	EventUp   InterfaceEvent = "UP"
	EventDown InterfaceEvent = "DOWN"
)

// InterfaceUpdate is the accumulation contribution of one interface for one cycle.
type InterfaceUpdate struct {
	DeltaIn     uint64     `json:"delta_in_bytes"`
	DeltaOut    uint64     `json:"delta_out_bytes"`
	UpEvent     uint64     `json:"up_event"`
	DownEvent   uint64     `json:"down_event"`
	FinalStatus LinkStatus `json:"final_status"`
}

// AccumulatorUpdate carries one device's contribution. CPU and RAMPercent are nil
// when the metric could not be read this cycle.
type AccumulatorUpdate struct {
	CPU        *float64                   `json:"cpu,omitempty"`
	RAMPercent *float64                   `json:"ram_percent,omitempty"`
	Interfaces map[string]InterfaceUpdate `json:"interfaces"`
}

type PollResult struct {
	Device  string
	Outcome Outcome
	Err     error
	Alerts  []string
	Runtime DeviceRuntime
	Update  AccumulatorUpdate
}

func (r PollResult) OK() bool {
	return r.Outcome == OutcomeOK
}
