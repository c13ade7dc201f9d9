package agent

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"routerwatch/internal/collector"
	"routerwatch/internal/model"
	"routerwatch/internal/notify"
	"routerwatch/internal/stream"
)

func TestHealthSnapshot(t *testing.T) {
	q := notify.NewQueue(notify.NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil))), notify.QueueOptions{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewHealthStatus(q)

	snap := h.Snapshot()
	assert.Equal(t, uint64(0), snap["cycles"])
	assert.NotContains(t, snap, "last_cycle_at")

	h.ObserveCycle(collector.CycleStats{StartedAt: time.Unix(100, 0), Duration: 1500 * time.Millisecond, Reachable: 3, Unreachable: 1, Failed: 1})
	snap = h.Snapshot()
	assert.Equal(t, uint64(1), snap["cycles"])
	assert.Equal(t, int64(1500), snap["last_cycle_ms"])
	assert.Equal(t, 2, snap["unreachable"])
	assert.Contains(t, snap, "notifications")
}

type failingSink struct{ stream.NopSink }

func (failingSink) SendCycle(context.Context, model.CycleSnapshot) error { return assert.AnError }

func TestHealthSinkTracksStreamState(t *testing.T) {
	h := NewHealthStatus(nil)
	ok := &healthSink{sink: stream.NopSink{}, health: h}
	bad := &healthSink{sink: failingSink{}, health: h}

	assert.NoError(t, ok.SendCycle(context.Background(), model.CycleSnapshot{}))
	assert.Equal(t, true, h.Snapshot()["stream_connected"])
	assert.Error(t, bad.SendCycle(context.Background(), model.CycleSnapshot{}))
	assert.Equal(t, false, h.Snapshot()["stream_connected"])
}

func TestReplaceLevelNamesCritical(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: replaceLevel}))

	logger.Log(context.Background(), collector.LevelCritical, "persist failed")
	logger.Warn("just a warning")

	assert.Contains(t, buf.String(), "level=CRITICAL")
	assert.Contains(t, buf.String(), "level=WARN")
}
