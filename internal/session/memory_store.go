package session

import (
	"context"
	"sync"
	"time"

	apperrors "ChainAgent/internal/errors"
)

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Intended for development and
// tests; a restart loses every session.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store with the given session TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expiresAt) {
		if ok {
			m.mu.Lock()
			delete(m.entries, id)
			m.mu.Unlock()
		}
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "", apperrors.WithMetadata("session_id", id))
	}
	return cloneSession(entry.session), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	m.entries[s.ID] = memoryEntry{session: cloneSession(s), expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// cloneSession keeps callers from mutating stored state through shared slices.
func cloneSession(s *Session) *Session {
	clone := *s
	clone.Messages = append([]Message(nil), s.Messages...)
	return &clone
}
