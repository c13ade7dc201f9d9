package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"routerwatch/internal/accumulator"
	"routerwatch/internal/model"
	"routerwatch/internal/notify"
	"routerwatch/internal/rollover"
	"routerwatch/internal/store"
	"routerwatch/internal/stream"
)

// LevelCritical marks failures that put persisted state at risk.
const LevelCritical = slog.Level(12)

var ErrWorkerPanic = errors.New("poll worker panicked")

// Poller runs one poll of one device. Implementations must be safe for concurrent use.
type Poller interface {
	Collect(ctx context.Context, dev model.DeviceConfig, prev model.DeviceRuntime) model.PollResult
}

type CycleStats struct {
	CycleID       string        `json:"cycle_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Devices       int           `json:"devices"`
	Reachable     int           `json:"reachable"`
	Unreachable   int           `json:"unreachable"`
	Failed        int           `json:"failed"`
	Alerts        int           `json:"alerts"`
	PersistErrors int           `json:"persist_errors"`
}

type CycleObserver interface {
	ObserveCycle(CycleStats)
}

type SchedulerConfig struct {
	Interval      time.Duration
	ErrorBackoff  time.Duration
	Workers       int
	CollectorID   string
	StreamTimeout time.Duration
}

type Deps struct {
	Devices     []model.DeviceConfig
	Poller      Poller
	Store       *store.Store
	Accumulator *accumulator.Accumulator
	Rollover    *rollover.Manager
	Alerts      notify.Publisher
	Sink        stream.Sink
	Observer    CycleObserver
}

type requestKind int

const (
	requestRollover requestKind = iota
	requestReport
)

type request struct {
	kind  requestKind
	month string
	done  chan error
}

// Scheduler is the dispatcher. It owns the accumulator, the per-device runtime,
// reachability and threshold maps; workers only ever see copies and hand results back.
type Scheduler struct {
	logger   *slog.Logger
	cfg      SchedulerConfig
	devices  []model.DeviceConfig
	poller   Poller
	store    *store.Store
	acc      *accumulator.Accumulator
	roll     *rollover.Manager
	alerts   notify.Publisher
	sink     stream.Sink
	observer CycleObserver

	runtime    map[string]model.DeviceRuntime
	reach      map[string]model.Reachability
	thresholds map[string]model.ThresholdState

	requests chan request
	now      func() time.Time
}

func NewScheduler(logger *slog.Logger, cfg SchedulerConfig, deps Deps) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * cfg.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Second
	}
	if deps.Sink == nil {
		deps.Sink = stream.NopSink{}
	}

	s := &Scheduler{
		logger:   logger,
		cfg:      cfg,
		devices:  deps.Devices,
		poller:   deps.Poller,
		store:    deps.Store,
		acc:      deps.Accumulator,
		roll:     deps.Rollover,
		alerts:   deps.Alerts,
		sink:     deps.Sink,
		observer: deps.Observer,
		runtime:  make(map[string]model.DeviceRuntime, len(deps.Devices)),
		requests: make(chan request),
		now:      time.Now,
	}
	for _, dev := range s.devices {
		s.runtime[dev.Name] = store.LoadJSON(s.store, s.store.DevicePath(dev.Name), model.DeviceRuntime{})
	}
	s.reach = store.LoadJSON(s.store, s.store.ReachabilityPath(), map[string]model.Reachability{})
	s.thresholds = store.LoadJSON(s.store, s.store.ThresholdStatePath(), map[string]model.ThresholdState{})
	return s
}

// Run polls every device once per interval until ctx is done. A cycle that takes longer
// than the interval is followed immediately by the next one; a failed cycle waits for
// the error backoff instead.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "devices", len(s.devices), "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	for {
		start := s.now()
		wait := s.cfg.Interval
		if _, err := s.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Log(ctx, LevelCritical, "poll cycle failed", "error", err, "retry_in", s.cfg.ErrorBackoff)
			s.alerts.Publish(loopErrorAlert(err))
			wait = s.cfg.ErrorBackoff
		} else {
			wait = nextWait(s.cfg.Interval, s.now().Sub(start))
		}
		if !s.waitNext(ctx, wait) {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func nextWait(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// waitNext sleeps for d while serving manual requests. It reports false once ctx is done.
func (s *Scheduler) waitNext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case req := <-s.requests:
			req.done <- s.handle(req)
		case <-t.C:
			return true
		}
	}
}

func (s *Scheduler) handle(req request) error {
	switch req.kind {
	case requestRollover:
		return s.roll.Reconcile(s.now())
	case requestReport:
		return s.roll.RegenerateReports(req.month)
	default:
		return fmt.Errorf("unknown request kind %d", req.kind)
	}
}

// TriggerRollover asks the running scheduler to reconcile day and month boundaries now.
func (s *Scheduler) TriggerRollover(ctx context.Context) error {
	return s.submit(ctx, request{kind: requestRollover})
}

// TriggerReport asks the running scheduler to resend the monthly report of month.
func (s *Scheduler) TriggerReport(ctx context.Context, month string) error {
	return s.submit(ctx, request{kind: requestReport, month: month})
}

func (s *Scheduler) submit(ctx context.Context, req request) error {
	req.done = make(chan error, 1)
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (stats CycleStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Log(ctx, LevelCritical, "poll cycle panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.RunCycle(ctx)
}

// RunCycle performs one full cycle: boundary reconciliation, the bounded fan-out, the
// barrier, and the single-writer merge and persist.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	start := s.now()
	stats := CycleStats{CycleID: uuid.NewString(), StartedAt: start, Devices: len(s.devices)}

	if _, err := s.roll.ReconcileDay(start); err != nil {
		return stats, fmt.Errorf("daily rollover: %w", err)
	}
	if _, err := s.roll.ReconcileMonth(start); err != nil {
		stats.PersistErrors++
		s.persistFailed(ctx, "monthly rollover", err)
	}

	results := make([]model.PollResult, len(s.devices))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, dev := range s.devices {
		prev := s.runtime[dev.Name].Clone()
		g.Go(func() error {
			results[i] = s.pollDevice(ctx, dev, prev)
			return nil
		})
	}
	_ = g.Wait()

	attempt := s.now()
	var alerts []string
	for i, res := range results {
		dev := s.devices[i]
		switch {
		case res.OK():
			stats.Reachable++
			s.acc.Apply(dev.Name, res.Update)
			s.runtime[dev.Name] = res.Runtime
			if err := s.store.SaveJSON(s.store.DevicePath(dev.Name), res.Runtime); err != nil {
				stats.PersistErrors++
				s.persistFailed(ctx, "status of "+dev.Name, err)
			}
			if prev, ok := s.reach[dev.Name]; ok && !prev.Reachable {
				alerts = append(alerts, recoveredAlert(dev.Name))
			}
			s.reach[dev.Name] = model.Reachability{Reachable: true, LastAttempt: formatTime(attempt), LastSuccess: formatTime(attempt)}
			alerts = append(alerts, s.thresholdAlerts(dev, res.Update)...)
			alerts = append(alerts, res.Alerts...)
		case ctx.Err() != nil:
			// abandoned on shutdown; leave the device untouched
		default:
			if res.Outcome == model.OutcomeFailed {
				stats.Failed++
			} else {
				stats.Unreachable++
			}
			s.logger.Warn("device poll failed", "device", dev.Name, "outcome", res.Outcome, "error", res.Err)
			prev, seen := s.reach[dev.Name]
			if !seen || prev.Reachable {
				alerts = append(alerts, unreachableAlert(dev.Name, res.Err))
			}
			s.reach[dev.Name] = model.Reachability{
				Reachable:   false,
				LastAttempt: formatTime(attempt),
				LastSuccess: prev.LastSuccess,
				Error:       errString(res.Err),
			}
		}
	}

	if err := s.store.SaveJSON(s.store.AccumulatorPath(), s.acc.Snapshot()); err != nil {
		stats.PersistErrors++
		s.persistFailed(ctx, "daily accumulator", err)
	}
	if err := s.store.SaveJSON(s.store.ReachabilityPath(), s.reach); err != nil {
		stats.PersistErrors++
		s.persistFailed(ctx, "reachability", err)
	}
	if err := s.store.SaveJSON(s.store.ThresholdStatePath(), s.thresholds); err != nil {
		stats.PersistErrors++
		s.persistFailed(ctx, "threshold state", err)
	}

	for _, a := range alerts {
		s.alerts.Publish(a)
	}
	stats.Alerts = len(alerts)
	stats.Duration = s.now().Sub(start)

	if ctx.Err() == nil {
		s.publishSnapshot(ctx, stats, results)
	}
	if s.observer != nil {
		s.observer.ObserveCycle(stats)
	}
	s.logger.Info("poll cycle complete",
		"cycle_id", stats.CycleID,
		"duration", stats.Duration,
		"reachable", stats.Reachable,
		"unreachable", stats.Unreachable,
		"failed", stats.Failed,
		"alerts", stats.Alerts,
	)
	return stats, nil
}

// thresholdAlerts compares the CPU and RAM readings of dev with its thresholds. A
// breach alerts once on the way in and once on the way out; a metric that could not be
// read leaves its state alone.
func (s *Scheduler) thresholdAlerts(dev model.DeviceConfig, upd model.AccumulatorUpdate) []string {
	st := s.thresholds[dev.Name]
	var out []string
	if upd.CPU != nil {
		high := *upd.CPU > dev.CPUAlertThreshold
		switch {
		case high && !st.CPUHigh:
			out = append(out, cpuAlert(dev, *upd.CPU))
		case !high && st.CPUHigh:
			out = append(out, cpuNormalAlert(dev, *upd.CPU))
		}
		st.CPUHigh = high
	}
	if upd.RAMPercent != nil {
		high := *upd.RAMPercent > dev.RAMAlertThreshold
		switch {
		case high && !st.RAMHigh:
			out = append(out, ramAlert(dev, *upd.RAMPercent))
		case !high && st.RAMHigh:
			out = append(out, ramNormalAlert(dev, *upd.RAMPercent))
		}
		st.RAMHigh = high
	}
	s.thresholds[dev.Name] = st
	return out
}

func (s *Scheduler) pollDevice(ctx context.Context, dev model.DeviceConfig, prev model.DeviceRuntime) (res model.PollResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll worker panicked", "device", dev.Name, "panic", r, "stack", string(debug.Stack()))
			res = model.PollResult{Device: dev.Name, Outcome: model.OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()
	return s.poller.Collect(ctx, dev, prev)
}

func (s *Scheduler) persistFailed(ctx context.Context, what string, err error) {
	s.logger.Log(ctx, LevelCritical, "persist failed", "what", what, "error", err)
	s.alerts.Publish(persistenceAlert(what, err))
}

func (s *Scheduler) publishSnapshot(ctx context.Context, stats CycleStats, results []model.PollResult) {
	snap := model.CycleSnapshot{
		CycleID:       stats.CycleID,
		Collector:     s.cfg.CollectorID,
		Timestamp:     stats.StartedAt.UTC(),
		TimestampUnix: stats.StartedAt.Unix(),
		DurationMs:    stats.Duration.Milliseconds(),
		Devices:       make([]model.DeviceSnapshot, 0, len(results)),
	}
	for i, res := range results {
		ds := model.DeviceSnapshot{Device: s.devices[i].Name, Outcome: res.Outcome, Error: errString(res.Err)}
		if res.OK() {
			ds.CPU = res.Update.CPU
			ds.RAMPercent = res.Update.RAMPercent
			for name, upd := range res.Update.Interfaces {
				ds.Interfaces = append(ds.Interfaces, model.InterfaceSnapshot{Name: name, Status: upd.FinalStatus, In: upd.DeltaIn, Out: upd.DeltaOut})
			}
			sort.Slice(ds.Interfaces, func(a, b int) bool { return ds.Interfaces[a].Name < ds.Interfaces[b].Name })
		}
		snap.Devices = append(snap.Devices, ds)
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()
	if err := s.sink.SendCycle(sctx, snap); err != nil {
		s.logger.Warn("cycle snapshot not streamed", "cycle_id", snap.CycleID, "error", err)
	}
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
