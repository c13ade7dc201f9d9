// Package accumulator keeps the running per-day totals for every device.
//
// An Accumulator is not safe for concurrent use. The dispatcher is its only writer
// and merges poll results into it after each cycle's barrier.
package accumulator

import (
	"routerwatch/internal/metric"
	"routerwatch/internal/model"
)

type Accumulator struct {
	state   model.DailyAccumulator
	devices []model.DeviceConfig
}

// New adopts a persisted accumulator and makes sure every configured device and
// interface has an entry. The date is left as loaded.
func New(state model.DailyAccumulator, devices []model.DeviceConfig) *Accumulator {
	a := &Accumulator{state: clone(state), devices: devices}
	if a.state.Devices == nil {
		a.state.Devices = make(map[string]*model.DeviceAccumulator, len(devices))
	}
	for _, dev := range devices {
		a.ensureDevice(dev)
	}
	return a
}

func (a *Accumulator) Date() string {
	return a.state.LastResetDate
}

// Apply merges one successful poll of device into the running totals.
func (a *Accumulator) Apply(device string, u model.AccumulatorUpdate) {
	d := a.deviceEntry(device)
	if u.CPU != nil {
		d.CPUSum += *u.CPU
		d.CPUCount++
	}
	if u.RAMPercent != nil {
		d.RAMSum += *u.RAMPercent
		d.RAMCount++
	}
	for name, upd := range u.Interfaces {
		ia := d.Interfaces[name]
		if ia == nil {
			ia = &model.InterfaceAccumulator{CurrentStatus: model.LinkUnknown}
			d.Interfaces[name] = ia
		}
		ia.TotalIn += upd.DeltaIn
		ia.TotalOut += upd.DeltaOut
		ia.UpEvents += upd.UpEvent
		ia.DownEvents += upd.DownEvent
		if upd.FinalStatus != "" {
			ia.CurrentStatus = upd.FinalStatus
		}
	}
}

// Summaries renders one record per configured device for the current date.
func (a *Accumulator) Summaries() []model.DailySummaryRecord {
	out := make([]model.DailySummaryRecord, 0, len(a.devices))
	for _, dev := range a.devices {
		d := a.state.Devices[dev.Name]
		rec := model.DailySummaryRecord{
			Date:       a.state.LastResetDate,
			Device:     dev.Name,
			Interfaces: map[string]model.InterfaceDaySummary{},
		}
		if d != nil {
			rec.AvgCPU = average(d.CPUSum, d.CPUCount)
			rec.AvgRAM = average(d.RAMSum, d.RAMCount)
			rec.Samples = max(d.CPUCount, d.RAMCount)
			for name, ia := range d.Interfaces {
				rec.Interfaces[name] = model.InterfaceDaySummary{
					TotalInBytes:  ia.TotalIn,
					TotalOutBytes: ia.TotalOut,
					UpEvents:      ia.UpEvents,
					DownEvents:    ia.DownEvents,
					FinalStatus:   ia.CurrentStatus,
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// Reset zeroes every counter and starts date. Interface statuses go back to UNKNOWN.
func (a *Accumulator) Reset(date string) {
	a.state = model.DailyAccumulator{
		LastResetDate: date,
		Devices:       make(map[string]*model.DeviceAccumulator, len(a.devices)),
	}
	for _, dev := range a.devices {
		a.ensureDevice(dev)
	}
}

// Snapshot returns a deep copy suitable for persisting.
func (a *Accumulator) Snapshot() model.DailyAccumulator {
	return clone(a.state)
}

func (a *Accumulator) ensureDevice(dev model.DeviceConfig) {
	d := a.deviceEntry(dev.Name)
	for _, name := range dev.InterfaceNames() {
		if d.Interfaces[name] == nil {
			d.Interfaces[name] = &model.InterfaceAccumulator{CurrentStatus: model.LinkUnknown}
		}
	}
}

func (a *Accumulator) deviceEntry(name string) *model.DeviceAccumulator {
	d := a.state.Devices[name]
	if d == nil {
		d = &model.DeviceAccumulator{}
		a.state.Devices[name] = d
	}
	if d.Interfaces == nil {
		d.Interfaces = make(map[string]*model.InterfaceAccumulator)
	}
	return d
}

func average(sum float64, count uint64) *float64 {
	if count == 0 {
		return nil
	}
	v := metric.Round2(sum / float64(count))
	return &v
}

func clone(in model.DailyAccumulator) model.DailyAccumulator {
	out := model.DailyAccumulator{LastResetDate: in.LastResetDate}
	if in.Devices == nil {
		return out
	}
	out.Devices = make(map[string]*model.DeviceAccumulator, len(in.Devices))
	for name, d := range in.Devices {
		if d == nil {
			continue
		}
		cp := *d
		cp.Interfaces = make(map[string]*model.InterfaceAccumulator, len(d.Interfaces))
		for ifName, ia := range d.Interfaces {
			if ia == nil {
				continue
			}
			v := *ia
			cp.Interfaces[ifName] = &v
		}
		out.Devices[name] = &cp
	}
	return out
}
