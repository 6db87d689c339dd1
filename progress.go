package shardsift

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileState is the lifecycle state of one input file.
type FileState string

const (
	// StatePending means the file has been discovered but not started.
	StatePending FileState = "pending"
	// StateInProgress means a worker has claimed the file. Files still
	// in-progress after a crash are redone from scratch on the next run.
	StateInProgress FileState = "in-progress"
	// StateDone means every parseable line of the file reached its shard.
	StateDone FileState = "done"
)

// ProgressStore is the durable path→state map used to skip completed input
// files on resume. All mutations funnel through its mutex and every state
// change is persisted atomically via a temp file and rename.
type ProgressStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	states map[string]FileState
	logger *zap.Logger
}

// OpenProgressStore loads the progress document at path, tolerating a
// missing or malformed file by starting empty.
func OpenProgressStore(fs afero.Fs, path string, logger *zap.Logger) *ProgressStore {
	s := &ProgressStore{
		fs:     fs,
		path:   path,
		states: make(map[string]FileState),
		logger: logger,
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		// Missing on first run; anything else is equivalent for resume.
		return s
	}
	if err := json.Unmarshal(data, &s.states); err != nil {
		logger.Warn("malformed progress file, starting empty",
			zap.String("path", path),
			zap.Error(err))
		s.states = make(map[string]FileState)
	}
	return s
}

// HasDone reports whether the input file completed on this or a prior run.
func (s *ProgressStore) HasDone(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[path] == StateDone
}

// MarkInProgress records that a worker claimed the input file.
func (s *ProgressStore) MarkInProgress(path string) {
	s.set(path, StateInProgress)
}

// MarkDone records that every record of the input file reached its shard.
func (s *ProgressStore) MarkDone(path string) {
	s.set(path, StateDone)
}

// Snapshot returns a copy of the current state map.
func (s *ProgressStore) Snapshot() map[string]FileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]FileState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Flush persists the current state map. Used at shutdown to retry a persist
// that failed on the last state change.
func (s *ProgressStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// set updates one entry and persists the document. Every persist writes the
// whole map, so a failed write is retried by the next state change; it never
// aborts ingestion.
func (s *ProgressStore) set(path string, state FileState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[path] = state
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("failed to persist progress",
			zap.String("file", path),
			zap.Error(err))
	}
}

// persistLocked writes the state map to a temp file and renames it over the
// document, so readers never observe a partial write. The caller holds s.mu.
func (s *ProgressStore) persistLocked() error {
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write progress temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename progress file: %w", err)
	}
	return nil
}
