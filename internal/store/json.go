package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LoadJSON decodes path into a value of type T. A missing or undecodable file is
// logged and def is returned instead.
func LoadJSON[T any](s *Store, path string, def T) T {
	unlock := s.lockPath(path)
	data, err := os.ReadFile(path)
	unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("state file not found, using defaults", "path", path)
		} else {
			s.logger.Error("read state file failed, using defaults", "path", path, "error", err)
		}
		return def
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Error("corrupt state file, using defaults", "path", path, "error", err)
		return def
	}
	return out
}

// SaveJSON atomically replaces path with the indented JSON encoding of v.
func (s *Store) SaveJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	payload = append(payload, '\n')

	unlock := s.lockPath(path)
	defer unlock()
	return writeFileAtomic(path, payload)
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("write temporary file for %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerms); err != nil {
		cleanup()
		return fmt.Errorf("chmod temporary file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temporary file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
