package model

type LinkStatus string

const (
	LinkUp      LinkStatus = "UP"
	LinkDown    LinkStatus = "DOWN"
	LinkUnknown LinkStatus = "UNKNOWN"
)

// InterfaceRuntimeState is the last successful observation of one interface.
type InterfaceRuntimeState struct {
	Status    LinkStatus `json:"status"`
	In        uint64     `json:"in"`
	Out       uint64     `json:"out"`
	DownCount int        `json:"down_count"`
}

// DeviceRuntime is keyed by ifIndex.
type DeviceRuntime map[string]InterfaceRuntimeState

func (r DeviceRuntime) Clone() DeviceRuntime {
	out := make(DeviceRuntime, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Reachability struct {
	Reachable   bool   `json:"reachable"`
	LastAttempt string `json:"last_attempt"`
	LastSuccess string `json:"last_success,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ThresholdState records whether a device was over its CPU or RAM threshold at the
// last reading, so a sustained breach alerts only once.
type ThresholdState struct {
	CPUHigh bool `json:"cpu_high"`
	RAMHigh bool `json:"ram_high"`
}
