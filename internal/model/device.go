package model

import (
	"sort"
	"strconv"
)

type CounterWidth uint8

const (
	CounterWidth32 CounterWidth = 32
	CounterWidth64 CounterWidth = 64
)

const (
	DefaultCPUAlertThreshold = 85.0
	DefaultRAMAlertThreshold = 90.0
)

type MetricOIDs struct {
	CPU      string `json:"cpu" mapstructure:"cpu"`
	RAMTotal string `json:"ram_total" mapstructure:"ram_total"`
	RAMUsed  string `json:"ram_used" mapstructure:"ram_used"`
}

// DeviceConfig describes one managed router. It is immutable once the inventory is loaded.
type DeviceConfig struct {
	Name              string            `json:"name"`
	Address           string            `json:"address"`
	Credential        string            `json:"credential"`
	SNMPVersion       string            `json:"snmp_version"`
	Interfaces        map[string]string `json:"interfaces"`
	OIDs              MetricOIDs        `json:"oids"`
	CounterWidth      CounterWidth      `json:"counter_width_bits"`
	CPUAlertThreshold float64           `json:"cpu_alert_threshold"`
	RAMAlertThreshold float64           `json:"ram_alert_threshold"`
}

// InterfaceIndexes returns the configured ifIndex keys in numeric order.
func (d DeviceConfig) InterfaceIndexes() []string {
	out := make([]string, 0, len(d.Interfaces))
	for idx := range d.Interfaces {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i])
		b, errB := strconv.Atoi(out[j])
		if errA != nil || errB != nil {
			return out[i] < out[j]
		}
		return a < b
	})
	return out
}

// InterfaceNames returns interface names in ifIndex order.
func (d DeviceConfig) InterfaceNames() []string {
	idx := d.InterfaceIndexes()
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, d.Interfaces[i])
	}
	return out
}
