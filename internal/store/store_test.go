package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routerwatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(v float64) *float64 { return &v }

func TestLoadJSONMissingReturnsDefault(t *testing.T) {
	s := newTestStore(t)
	got := LoadJSON(s, s.ScriptStatePath(), model.ScriptState{LastReportedMonth: "2024-01"})
	assert.Equal(t, "2024-01", got.LastReportedMonth)
}

func TestLoadJSONCorruptReturnsDefault(t *testing.T) {
	s := newTestStore(t)
	path := s.AccumulatorPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got := LoadJSON(s, path, model.DailyAccumulator{LastResetDate: "fallback"})
	assert.Equal(t, "fallback", got.LastResetDate)
}

func TestSaveJSONRoundTripLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	path := s.DevicePath("core router")
	runtime := model.DeviceRuntime{"1": {Status: model.LinkUp, In: 10, Out: 20}}

	require.NoError(t, s.SaveJSON(path, runtime))
	require.NoError(t, s.SaveJSON(path, runtime))

	got := LoadJSON(s, path, model.DeviceRuntime{})
	assert.Equal(t, runtime, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "core router.json", entries[0].Name())
}

func TestConcurrentSaveAndLoadNeverSeesPartialFile(t *testing.T) {
	s := newTestStore(t)
	path := s.AccumulatorPath()
	acc := model.DailyAccumulator{LastResetDate: "2024-05-31", Devices: map[string]*model.DeviceAccumulator{}}
	for i := 0; i < 50; i++ {
		acc.Devices[fmt.Sprintf("dev-%d", i)] = &model.DeviceAccumulator{CPUSum: float64(i)}
	}
	require.NoError(t, s.SaveJSON(path, acc))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SaveJSON(path, acc))
		}()
		go func() {
			defer wg.Done()
			got := LoadJSON(s, path, model.DailyAccumulator{LastResetDate: "corrupt"})
			assert.Equal(t, "2024-05-31", got.LastResetDate)
		}()
	}
	wg.Wait()
}

func TestAppendSummaryIsIdempotentPerDate(t *testing.T) {
	s := newTestStore(t)
	rec := model.DailySummaryRecord{Date: "2024-05-31", Device: "edge", AvgCPU: ptr(12.5)}

	appended, err := s.AppendSummary(rec)
	require.NoError(t, err)
	assert.True(t, appended)

	appended, err = s.AppendSummary(rec)
	require.NoError(t, err)
	assert.False(t, appended)

	_, err = s.AppendSummary(model.DailySummaryRecord{Date: "2024-05-30", Device: "edge"})
	require.NoError(t, err)

	recs, err := s.ReadSummaries("edge", "2024-05")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-05-31", recs[0].Date)
	assert.Equal(t, "2024-05-30", recs[1].Date)
	assert.FileExists(t, filepath.Join(s.Root(), "logs", "edge", "2024-05", "daily_summary.jsonl"))
}

func TestReadSummariesSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendSummary(model.DailySummaryRecord{Date: "2024-05-01", Device: "edge"})
	require.NoError(t, err)

	f, err := os.OpenFile(s.SummaryPath("edge", "2024-05"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.AppendSummary(model.DailySummaryRecord{Date: "2024-05-02", Device: "edge"})
	require.NoError(t, err)

	recs, err := s.ReadSummaries("edge", "2024-05")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestArchiveMonthAndReadBack(t *testing.T) {
	s := newTestStore(t)
	for _, d := range []string{"2024-05-01", "2024-05-02"} {
		_, err := s.AppendSummary(model.DailySummaryRecord{Date: d, Device: "edge"})
		require.NoError(t, err)
	}

	archive, err := s.ArchiveMonth("edge", "2024-05")
	require.NoError(t, err)
	assert.FileExists(t, archive)
	assert.NoDirExists(t, s.MonthDir("edge", "2024-05"))

	recs, err := s.ReadSummaries("edge", "2024-05")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-05-02", recs[1].Date)

	_, err = s.ArchiveMonth("edge", "2024-05")
	assert.ErrorIs(t, err, ErrNothingToArchive)
}

func TestAppendSummaryAfterArchiveKeepsMonthWhole(t *testing.T) {
	s := newTestStore(t)
	for _, d := range []string{"2024-05-30", "2024-05-31"} {
		_, err := s.AppendSummary(model.DailySummaryRecord{Date: d, Device: "edge"})
		require.NoError(t, err)
	}
	_, err := s.ArchiveMonth("edge", "2024-05")
	require.NoError(t, err)

	appended, err := s.AppendSummary(model.DailySummaryRecord{Date: "2024-05-31", Device: "edge", AvgCPU: ptr(99)})
	require.NoError(t, err)
	assert.False(t, appended)
	assert.NoDirExists(t, s.MonthDir("edge", "2024-05"))

	recs, err := s.ReadSummaries("edge", "2024-05")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[1].AvgCPU)
}

func TestReadSummariesMergesArchiveAndStrayLog(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendSummary(model.DailySummaryRecord{Date: "2024-05-30", Device: "edge"})
	require.NoError(t, err)
	_, err = s.ArchiveMonth("edge", "2024-05")
	require.NoError(t, err)

	// a raw log written next to the archive, e.g. by an older collector
	require.NoError(t, os.MkdirAll(s.MonthDir("edge", "2024-05"), 0o755))
	stray := `{"date":"2024-05-30","device":"edge"}` + "\n" + `{"date":"2024-05-31","device":"edge"}` + "\n"
	require.NoError(t, os.WriteFile(s.SummaryPath("edge", "2024-05"), []byte(stray), 0o644))

	recs, err := s.ReadSummaries("edge", "2024-05")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-05-30", recs[0].Date)
	assert.Equal(t, "2024-05-31", recs[1].Date)
}

func TestReadSummariesUnknownMonth(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadSummaries("edge", "1999-01")
	assert.ErrorIs(t, err, ErrNoSummaries)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Mikrotik Core", safeName(" Mikrotik Core "))
	assert.Equal(t, "a_b", safeName("a/b"))
	assert.Equal(t, "_", safeName(".."))
}
