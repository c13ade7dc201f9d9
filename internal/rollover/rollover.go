// Package rollover closes out days and months: it flushes the daily accumulator into
// the per-device summary logs and, once per month, reports on and archives the
// previous month.
package rollover

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"routerwatch/internal/accumulator"
	"routerwatch/internal/model"
	"routerwatch/internal/notify"
	"routerwatch/internal/report"
	"routerwatch/internal/store"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// Manager is driven by the dispatcher between poll cycles and shares its accumulator.
// It is not safe for concurrent use.
type Manager struct {
	logger    *slog.Logger
	store     *store.Store
	devices   []model.DeviceConfig
	acc       *accumulator.Accumulator
	state     model.ScriptState
	dirty     bool
	publisher notify.Publisher
	loc       *time.Location
}

func NewManager(
	st *store.Store,
	devices []model.DeviceConfig,
	acc *accumulator.Accumulator,
	state model.ScriptState,
	publisher notify.Publisher,
	loc *time.Location,
	logger *slog.Logger,
) *Manager {
	if loc == nil {
		loc = time.Local
	}
	return &Manager{
		logger:    logger,
		store:     st,
		devices:   devices,
		acc:       acc,
		state:     state,
		publisher: publisher,
		loc:       loc,
	}
}

func (m *Manager) State() model.ScriptState {
	return m.state
}

// Reconcile runs the day boundary then the month boundary for now.
func (m *Manager) Reconcile(now time.Time) error {
	if _, err := m.ReconcileDay(now); err != nil {
		return err
	}
	if _, err := m.ReconcileMonth(now); err != nil {
		return err
	}
	return nil
}

// ReconcileDay flushes the accumulator when its date is not today and starts a fresh
// day. The flush comes before the reset, and appending an already recorded date is a
// no-op, so a crash in between is repaired by the next call.
func (m *Manager) ReconcileDay(now time.Time) (bool, error) {
	today := now.In(m.loc).Format(DateLayout)
	last := m.acc.Date()
	if last == today {
		return false, nil
	}

	flushed := false
	if last != "" {
		for _, rec := range m.acc.Summaries() {
			appended, err := m.store.AppendSummary(rec)
			if err != nil {
				return false, fmt.Errorf("flush %s summary for %s: %w", rec.Device, last, err)
			}
			if appended {
				m.logger.Info("daily summary written", "device", rec.Device, "date", last)
			}
		}
		flushed = true
	}

	m.acc.Reset(today)
	if err := m.store.SaveJSON(m.store.AccumulatorPath(), m.acc.Snapshot()); err != nil {
		return flushed, fmt.Errorf("persist accumulator: %w", err)
	}
	m.logger.Info("daily accumulator reset", "previous_date", last, "date", today)
	return flushed, nil
}

// ReconcileMonth reports on and archives every month after the last reported one up to
// the previous calendar month, oldest first. It fires only while the last reported
// month is lexically before the previous calendar month.
func (m *Manager) ReconcileMonth(now time.Time) (bool, error) {
	if m.dirty {
		if err := m.persistState(); err != nil {
			return false, err
		}
	}

	prev := PreviousMonth(now.In(m.loc))
	if m.state.LastReportedMonth >= prev {
		return false, nil
	}

	for _, month := range pendingMonths(m.state.LastReportedMonth, prev) {
		m.logger.Info("monthly rollover", "month", month, "last_reported_month", m.state.LastReportedMonth)
		for _, dev := range m.devices {
			m.publisher.Publish(m.monthlyReport(dev.Name, month).Text())
			m.archive(dev.Name, month)
		}
		m.state.LastReportedMonth = month
		if err := m.persistState(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// pendingMonths lists the months after last up to and including prev. Without a valid
// last month only prev is due.
func pendingMonths(last, prev string) []string {
	from, err := time.Parse(MonthLayout, last)
	if err != nil {
		return []string{prev}
	}
	var out []string
	for t := from.AddDate(0, 1, 0); t.Format(MonthLayout) <= prev; t = t.AddDate(0, 1, 0) {
		out = append(out, t.Format(MonthLayout))
	}
	return out
}

// RegenerateReports sends the report of month for every device again without touching
// the rollover state.
func (m *Manager) RegenerateReports(month string) error {
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return fmt.Errorf("invalid month %q: %w", month, err)
	}
	for _, dev := range m.devices {
		m.publisher.Publish(m.monthlyReport(dev.Name, month).Text())
	}
	return nil
}

func (m *Manager) monthlyReport(device, month string) report.Monthly {
	recs, err := m.store.ReadSummaries(device, month)
	if err != nil && !errors.Is(err, store.ErrNoSummaries) {
		m.logger.Error("read daily summaries", "device", device, "month", month, "error", err)
	}
	return report.Aggregate(device, month, recs)
}

func (m *Manager) archive(device, month string) {
	path, err := m.store.ArchiveMonth(device, month)
	switch {
	case err == nil:
		m.logger.Info("month archived", "device", device, "month", month, "archive", path)
	case errors.Is(err, store.ErrNothingToArchive):
		m.logger.Info("no month directory to archive", "device", device, "month", month)
	default:
		m.logger.Error("archive month", "device", device, "month", month, "error", err)
		m.publisher.Publish(fmt.Sprintf("💾 Archive of %s for %s failed: %s", month, notify.EscapeMarkdown(device), notify.EscapeMarkdown(err.Error())))
	}
}

func (m *Manager) persistState() error {
	if err := m.store.SaveJSON(m.store.ScriptStatePath(), m.state); err != nil {
		m.dirty = true
		return fmt.Errorf("persist script state: %w", err)
	}
	m.dirty = false
	return nil
}

// PreviousMonth is the calendar month before t, in t's location.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, 0, -1).Format(MonthLayout)
}
