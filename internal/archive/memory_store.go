package archive

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps turns in process memory, for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]*Turn // session id -> turns in insertion order
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]*Turn)}
}

func (m *MemoryStore) SaveTurn(_ context.Context, turn *Turn) error {
	clone := *turn
	m.mu.Lock()
	m.turns[turn.SessionID] = append(m.turns[turn.SessionID], &clone)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.turns[sessionID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}
	out := make([]*Turn, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *stored[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	all := make([]*Turn, 0)
	for _, stored := range m.turns {
		for _, turn := range stored {
			clone := *turn
			all = append(all, &clone)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) Close() error { return nil }
