// Package store persists collector state as JSON files under a data root.
//
// Every access to a given path is serialized through a lock owned by the Store,
// so concurrent readers (for example the status API) never observe a file while
// it is being replaced. Writes go to a temporary file in the same directory that
// is then renamed over the target.
package store

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

const (
	statusDirName       = "status"
	logsDirName         = "logs"
	accumulatorFileName = "daily_accumulator.json"
	scriptStateFileName = "script_state.json"
	reachabilityName    = "reachability.json"
	thresholdStateName  = "threshold_state.json"
	summaryFileName     = "daily_summary.jsonl"

	dirPerms  = 0o755
	filePerms = 0o644
)

var (
	ErrNothingToArchive = errors.New("month directory does not exist")
	ErrNoSummaries      = errors.New("no daily summaries for month")
)

type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(root string, logger *slog.Logger) *Store {
	if root == "" {
		root = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) Root() string {
	return s.root
}

// lockPath returns the lock dedicated to path. Locks are created lazily and live for
// the lifetime of the Store.
func (s *Store) lockPath(path string) func() {
	key := filepath.Clean(path)
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) StatusDir() string {
	return filepath.Join(s.root, statusDirName)
}

func (s *Store) LogsDir() string {
	return filepath.Join(s.root, logsDirName)
}

func (s *Store) DevicePath(device string) string {
	return filepath.Join(s.StatusDir(), safeName(device)+".json")
}

func (s *Store) AccumulatorPath() string {
	return filepath.Join(s.StatusDir(), accumulatorFileName)
}

func (s *Store) ScriptStatePath() string {
	return filepath.Join(s.StatusDir(), scriptStateFileName)
}

func (s *Store) ReachabilityPath() string {
	return filepath.Join(s.StatusDir(), reachabilityName)
}

func (s *Store) ThresholdStatePath() string {
	return filepath.Join(s.StatusDir(), thresholdStateName)
}

func (s *Store) MonthDir(device, month string) string {
	return filepath.Join(s.LogsDir(), safeName(device), month)
}

func (s *Store) SummaryPath(device, month string) string {
	return filepath.Join(s.MonthDir(device, month), summaryFileName)
}

func (s *Store) ArchivePath(device, month string) string {
	return filepath.Join(s.LogsDir(), safeName(device), month+".tar.gz")
}

func safeName(name string) string {
	name = strings.TrimSpace(name)
	r := strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")
	name = r.Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
