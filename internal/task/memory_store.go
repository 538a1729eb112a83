package task

import (
	"context"
	"sync"

	apperrors "ChainAgent/internal/errors"
)

// MemoryStore keeps task records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Put(_ context.Context, r *Record) error {
	clone := *r
	m.mu.Lock()
	m.records[r.Task.ID] = &clone
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	record, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "task not found",
			apperrors.WithMetadata("task_id", id))
	}
	clone := *record
	return &clone, nil
}

func (m *MemoryStore) Close() error { return nil }
