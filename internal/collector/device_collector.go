package collector

import (
	"context"
	"log/slog"
	"time"

	"routerwatch/internal/metric"
	"routerwatch/internal/model"
	"routerwatch/internal/snmp"
)

// IF-MIB columns, suffixed with the ifIndex.
const (
	oidIfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	oidIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	oidIfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
)

type interfaceOIDs struct {
	status string
	in     string
	out    string
}

func interfaceOIDsFor(index string, width model.CounterWidth) interfaceOIDs {
	in, out := oidIfInOctets, oidIfOutOctets
	if width == model.CounterWidth64 {
		in, out = oidIfHCInOctets, oidIfHCOutOctets
	}
	return interfaceOIDs{
		status: oidIfOperStatus + "." + index,
		in:     in + "." + index,
		out:    out + "." + index,
	}
}

// DeviceCollector polls one device per call. It holds no per-device state: the previous
// runtime comes in as an argument and the next one goes out in the result. CPU and RAM
// thresholds are judged by the Scheduler, which remembers whether a device is in breach.
type DeviceCollector struct {
	logger  *slog.Logger
	querier snmp.Querier
	loc     *time.Location
	now     func() time.Time
}

func NewDeviceCollector(querier snmp.Querier, loc *time.Location, logger *slog.Logger) *DeviceCollector {
	if loc == nil {
		loc = time.Local
	}
	return &DeviceCollector{logger: logger, querier: querier, loc: loc, now: time.Now}
}

// Collect runs one poll of dev. Transport failures yield an unreachable result with an
// empty update; malformed individual values are skipped and logged.
func (c *DeviceCollector) Collect(ctx context.Context, dev model.DeviceConfig, prev model.DeviceRuntime) model.PollResult {
	indexes := dev.InterfaceIndexes()
	ifOIDs := make(map[string]interfaceOIDs, len(indexes))
	oids := []string{dev.OIDs.CPU, dev.OIDs.RAMTotal, dev.OIDs.RAMUsed}
	for _, idx := range indexes {
		o := interfaceOIDsFor(idx, dev.CounterWidth)
		ifOIDs[idx] = o
		oids = append(oids, o.status, o.in, o.out)
	}

	target := snmp.Target{Name: dev.Name, Address: dev.Address, Community: dev.Credential, Version: dev.SNMPVersion}
	values, err := c.querier.Get(ctx, target, oids)
	if err != nil {
		return model.PollResult{Device: dev.Name, Outcome: model.OutcomeUnreachable, Err: err}
	}

	res := model.PollResult{
		Device:  dev.Name,
		Outcome: model.OutcomeOK,
		Runtime: make(model.DeviceRuntime, len(indexes)),
		Update:  model.AccumulatorUpdate{Interfaces: make(map[string]model.InterfaceUpdate, len(indexes))},
	}

	if cpu, ok := lookupUint(values, dev.OIDs.CPU); ok {
		v := float64(cpu)
		res.Update.CPU = &v
	} else {
		c.logger.Warn("cpu value unusable", "device", dev.Name, "oid", dev.OIDs.CPU)
	}

	total, okTotal := lookupUint(values, dev.OIDs.RAMTotal)
	used, okUsed := lookupUint(values, dev.OIDs.RAMUsed)
	if okTotal && okUsed {
		pct := metric.Round2(metric.RAMPercent(used, total))
		res.Update.RAMPercent = &pct
	} else {
		c.logger.Warn("ram values unusable", "device", dev.Name, "total_ok", okTotal, "used_ok", okUsed)
	}

	var changes []interfaceChange
	for _, idx := range indexes {
		name := dev.Interfaces[idx]
		o := ifOIDs[idx]
		before, seen := prev[idx]

		status, okStatus := lookupInt(values, o.status)
		in, okIn := lookupUint(values, o.in)
		out, okOut := lookupUint(values, o.out)
		if !okStatus || !okIn || !okOut {
			c.logger.Warn("interface values unusable", "device", dev.Name, "interface", name, "if_index", idx)
			if seen {
				res.Runtime[idx] = before
			}
			res.Update.Interfaces[name] = model.InterfaceUpdate{FinalStatus: model.LinkUnknown}
			continue
		}

		obs := metric.ObserveOperStatus(status)
		var upd model.InterfaceUpdate
		upd.FinalStatus = obs.LinkStatus()
		if seen {
			upd.DeltaIn = metric.ResolveDelta(before.In, in, dev.CounterWidth)
			upd.DeltaOut = metric.ResolveDelta(before.Out, out, dev.CounterWidth)
		}

		streak, event := metric.Debounce(before.DownCount, obs)
		switch event {
		case model.EventDown:
			upd.DownEvent = 1
			changes = append(changes, interfaceChange{iface: name, status: model.LinkDown})
		case model.EventUp:
			upd.UpEvent = 1
			changes = append(changes, interfaceChange{iface: name, status: model.LinkUp})
		}

		linkStatus := obs.LinkStatus()
		if obs == metric.ObservedUnknown && seen {
			linkStatus = before.Status
		}
		res.Runtime[idx] = model.InterfaceRuntimeState{Status: linkStatus, In: in, Out: out, DownCount: streak}
		res.Update.Interfaces[name] = upd
	}

	if len(changes) > 0 {
		res.Alerts = append(res.Alerts, interfaceChangeAlert(dev.Name, c.now().In(c.loc), changes))
	}
	return res
}

func lookupUint(values map[string]snmp.Value, oid string) (uint64, bool) {
	v, ok := values[snmp.NormalizeOID(oid)]
	if !ok {
		return 0, false
	}
	return v.Uint64()
}

func lookupInt(values map[string]snmp.Value, oid string) (int64, bool) {
	v, ok := values[snmp.NormalizeOID(oid)]
	if !ok {
		return 0, false
	}
	return v.Int64()
}
