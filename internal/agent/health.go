package agent

import (
	"context"
	"sync/atomic"
	"time"

	"routerwatch/internal/collector"
	"routerwatch/internal/notify"
	"routerwatch/internal/system"
)

type HealthStatus struct {
	streamConnected atomic.Bool
	cycles          atomic.Uint64
	lastCycle       atomic.Pointer[collector.CycleStats]
	self            atomic.Pointer[system.Sample]
	queue           *notify.Queue
}

func NewHealthStatus(queue *notify.Queue) *HealthStatus {
	return &HealthStatus{queue: queue}
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) ObserveCycle(stats collector.CycleStats) {
	h.cycles.Add(1)
	h.lastCycle.Store(&stats)
}

func (h *HealthStatus) setSelf(s system.Sample) {
	h.self.Store(&s)
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_connected": h.streamConnected.Load(),
		"cycles":           h.cycles.Load(),
	}
	if c := h.lastCycle.Load(); c != nil {
		out["last_cycle_at"] = c.StartedAt.UTC()
		out["last_cycle_ms"] = c.Duration.Milliseconds()
		out["reachable"] = c.Reachable
		out["unreachable"] = c.Unreachable + c.Failed
		out["persist_errors"] = c.PersistErrors
	}
	if s := h.self.Load(); s != nil {
		out["self"] = *s
	}
	if h.queue != nil {
		out["notifications"] = h.queue.Stats()
	}
	return out
}

func (h *HealthStatus) Health() any {
	return h.Snapshot()
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if a.sampler != nil {
				sample, err := a.sampler.Sample(ctx)
				if err != nil {
					a.logger.Debug("self sample incomplete", "error", err)
				}
				a.health.setSelf(sample)
			}
			a.logger.Debug("collector health", "snapshot", a.health.Snapshot())
		}
	}
}
