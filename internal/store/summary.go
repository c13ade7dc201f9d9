package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"routerwatch/internal/model"
)

// AppendSummary appends rec to the month log of its device. The month is taken from
// rec.Date. When the log or the month's archive already holds a record for the same
// date nothing is written and appended is false.
func (s *Store) AppendSummary(rec model.DailySummaryRecord) (appended bool, err error) {
	if len(rec.Date) < len("2006-01") {
		return false, fmt.Errorf("invalid summary date %q", rec.Date)
	}
	month := rec.Date[:len("2006-01")]
	path := s.SummaryPath(rec.Device, month)

	line, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode daily summary: %w", err)
	}

	unlock := s.lockPath(path)
	defer unlock()

	existing, err := readSummaryFile(path, s.logSkippedLine(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	archived, err := s.readArchive(rec.Device, month)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("cannot check month archive for daily summary", "device", rec.Device, "month", month, "error", err)
	}
	for _, r := range append(archived, existing...) {
		if r.Date == rec.Date {
			s.logger.Info("daily summary already recorded", "device", rec.Device, "date", rec.Date)
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return false, fmt.Errorf("create summary directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}

// ReadSummaries returns the daily records of one device for month: those in the
// month's tar.gz first, then any raw log records for dates the archive lacks.
func (s *Store) ReadSummaries(device, month string) ([]model.DailySummaryRecord, error) {
	path := s.SummaryPath(device, month)
	unlock := s.lockPath(path)
	raw, rawErr := readSummaryFile(path, s.logSkippedLine(path))
	unlock()
	if rawErr != nil && !errors.Is(rawErr, os.ErrNotExist) {
		return nil, rawErr
	}

	archived, archErr := s.readArchive(device, month)
	if archErr != nil && !errors.Is(archErr, os.ErrNotExist) {
		return nil, archErr
	}
	if rawErr != nil && archErr != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoSummaries, device, month)
	}

	seen := make(map[string]bool, len(archived))
	for _, r := range archived {
		seen[r.Date] = true
	}
	out := archived
	for _, r := range raw {
		if !seen[r.Date] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) readArchive(device, month string) ([]model.DailySummaryRecord, error) {
	archive := s.ArchivePath(device, month)
	unlock := s.lockPath(archive)
	defer unlock()
	return readArchivedSummaries(archive, s.logSkippedLine(archive))
}

func (s *Store) logSkippedLine(path string) func(int, error) {
	return func(line int, err error) {
		s.logger.Error("skipping corrupt daily summary line", "path", path, "line", line, "error", err)
	}
}

func readSummaryFile(path string, onBadLine func(int, error)) ([]model.DailySummaryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeSummaries(f, onBadLine)
}

func decodeSummaries(r io.Reader, onBadLine func(int, error)) ([]model.DailySummaryRecord, error) {
	var out []model.DailySummaryRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec model.DailySummaryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			if onBadLine != nil {
				onBadLine(n, err)
			}
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan daily summaries: %w", err)
	}
	return out, nil
}
