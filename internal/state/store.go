// Package state persists the mapping from task ids to remote issue numbers.
//
// The backing file is a JSON array of sync records. The store owns that file
// exclusively; callers go through the Store API and never touch the file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kirosync/kirosync/internal/parser"
)

// ErrNotLoaded is returned when a store operation runs before Load.
var ErrNotLoaded = errors.New("state store not loaded: call Load first")

// SyncState links one task id to one remote issue and the fingerprint of the
// content last pushed there.
type SyncState struct {
	TaskID      string    `json:"taskId"`
	IssueNumber int       `json:"remoteIssueNumber"`
	LastSynced  time.Time `json:"lastSynced"`
	LastHash    string    `json:"lastHash"`
	FilePath    string    `json:"filePath"`
}

// Store is a durable key-value store of SyncState keyed by task id.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	states map[string]SyncState
}

// NewStore creates a store backed by the file at path. Call Load before use.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		states: make(map[string]SyncState),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the backing file. A missing file is not an error (first run);
// any other read or parse failure is fatal for the store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path) // #nosec G304 - path comes from configuration
	if os.IsNotExist(err) {
		s.states = make(map[string]SyncState)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading sync state: %w", err)
	}

	var records []SyncState
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing sync state %s: %w", s.path, err)
	}

	s.states = make(map[string]SyncState, len(records))
	for _, rec := range records {
		s.states[rec.TaskID] = rec
	}
	s.loaded = true
	return nil
}

// Save writes the full state to disk, creating parent directories as needed.
// The write goes to a temp file first and is renamed into place.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sync state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing sync state: %w", err)
	}
	return nil
}

// Get returns the record for a task id, if present.
func (s *Store) Get(taskID string) (SyncState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return SyncState{}, false, ErrNotLoaded
	}
	rec, ok := s.states[taskID]
	return rec, ok, nil
}

// Set inserts or replaces the record for its task id. The caller still needs
// Save to persist.
func (s *Store) Set(rec SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	s.states[rec.TaskID] = rec
	return nil
}

// Delete removes the record for a task id, if present.
func (s *Store) Delete(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	delete(s.states, taskID)
	return nil
}

// NeedsSync reports whether a task must be pushed to the tracker. True when
// no record exists, when the stored hash differs from currentHash, or when
// the task has moved to a different file. The file-move case matters because
// the issue body embeds the source location.
func (s *Store) NeedsSync(task parser.Task, currentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return false, ErrNotLoaded
	}

	rec, ok := s.states[task.ID]
	if !ok {
		return true, nil
	}
	if rec.LastHash != currentHash {
		return true, nil
	}
	if rec.FilePath != task.FilePath {
		return true, nil
	}
	return false, nil
}

// CleanupOrphans removes and returns every stored record whose task id is not
// in currentIDs. The caller closes the corresponding remote issues.
func (s *Store) CleanupOrphans(currentIDs map[string]struct{}) ([]SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}

	var orphans []SyncState
	for id, rec := range s.states {
		if _, ok := currentIDs[id]; !ok {
			orphans = append(orphans, rec)
			delete(s.states, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].TaskID < orphans[j].TaskID })
	return orphans, nil
}

// All returns every record, sorted by task id.
func (s *Store) All() ([]SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return s.sortedLocked(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0, ErrNotLoaded
	}
	return len(s.states), nil
}

func (s *Store) sortedLocked() []SyncState {
	records := make([]SyncState, 0, len(s.states))
	for _, rec := range s.states {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })
	return records
}

// Export serializes the full state for backup.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return json.MarshalIndent(s.sortedLocked(), "", "  ")
}

// Import replaces the in-memory state with records from a backup. Every
// record is validated first; a single malformed record rejects the whole
// import rather than silently dropping it. Import marks the store loaded so
// a fresh store can be restored from backup, but does not persist; call Save.
func (s *Store) Import(data []byte) error {
	var records []SyncState
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing import data: %w", err)
	}

	for i, rec := range records {
		if rec.TaskID == "" {
			return fmt.Errorf("import record %d: missing taskId", i)
		}
		if rec.IssueNumber <= 0 {
			return fmt.Errorf("import record %d (%s): invalid remoteIssueNumber %d", i, rec.TaskID, rec.IssueNumber)
		}
		if rec.LastHash == "" {
			return fmt.Errorf("import record %d (%s): missing lastHash", i, rec.TaskID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]SyncState, len(records))
	for _, rec := range records {
		s.states[rec.TaskID] = rec
	}
	s.loaded = true
	return nil
}
