package history

import (
	"context"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh/id"
	"github.com/taskmesh/taskmesh/task"
)

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a fully in-memory archive. Safe for concurrent access.
// Records are copied on the way in and out so callers can never mutate
// archived state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by task id
	order   []string           // archive order, oldest first
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Archive stores a copy of the record.
func (m *MemoryStore) Archive(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.TaskID.String()
	if _, exists := m.records[key]; !exists {
		m.order = append(m.order, key)
	}
	clone := *r
	m.records[key] = &clone
	return nil
}

// Get returns a copy of the record for the task id.
func (m *MemoryStore) Get(_ context.Context, taskID id.TaskID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[taskID.String()]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *r
	return &clone, nil
}

// List returns copies of matching records, newest first.
func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.records[m.order[i]]
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Count returns the number of records with the given status.
func (m *MemoryStore) Count(_ context.Context, status task.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status == "" {
		return int64(len(m.records)), nil
	}
	var n int64
	for _, r := range m.records {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

// Purge removes records archived before the cutoff.
func (m *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	kept := m.order[:0]
	for _, key := range m.order {
		r := m.records[key]
		if r.ArchivedAt.Before(cutoff) {
			delete(m.records, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
	return removed, nil
}
