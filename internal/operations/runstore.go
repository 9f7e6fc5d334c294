package operations

import (
	"fmt"
	"sync"
	"time"
)

// RunRecord is a finished run as kept by a RunStore
type RunRecord struct {
	ID        string             `json:"id"`
	URL       string             `json:"url"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Stats     Stats              `json:"stats"`
	State     *OrchestratorState `json:"state"`
}

// MemoryRunStore is an in-memory RunStore that keeps the newest runs up to
// its limit
type MemoryRunStore struct {
	mu    sync.RWMutex
	limit int
	order []string
	runs  map[string]RunRecord
}

// NewMemoryRunStore creates a store keeping at most limit runs
func NewMemoryRunStore(limit int) *MemoryRunStore {
	if limit < 1 {
		limit = 1
	}
	return &MemoryRunStore{
		limit: limit,
		runs:  make(map[string]RunRecord),
	}
}

// Save stores record, evicting the oldest run when full
func (s *MemoryRunStore) Save(record RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[record.ID]; exists {
		return fmt.Errorf("run %s already exists", record.ID)
	}

	s.runs[record.ID] = record
	s.order = append(s.order, record.ID)
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get returns the run with id
func (s *MemoryRunStore) Get(id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.runs[id]
	if !exists {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return record, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *MemoryRunStore) List(limit int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out
}

// Len returns the number of stored runs
func (s *MemoryRunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
