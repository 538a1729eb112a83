package session

import (
	"context"
	"hash/fnv"
	"sync"
)

const lockShards = 64

// Manager guards session history with two lock levels: a write lock that keeps
// each Append or Delete atomic, and a turn lock that callers hold across a
// whole conversation turn so two turns on the same session cannot interleave
// their history writes. The levels are separate mutexes, so a turn holder can
// still append.
type Manager struct {
	store       Store
	maxMessages int
	locks       [lockShards]sync.Mutex
	turnLocks   [lockShards]sync.Mutex
}

// NewManager wraps a store with per-session locking and history capping.
func NewManager(store Store, maxMessages int) *Manager {
	return &Manager{store: store, maxMessages: maxMessages}
}

func shardIndex(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32() % lockShards
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	return &m.locks[shardIndex(id)]
}

// LockTurn takes the session's turn lock and returns the release function.
// The caller holds it for the full turn: user message, tool results and the
// final assistant message land as one contiguous block of history.
func (m *Manager) LockTurn(id string) (unlock func()) {
	mu := &m.turnLocks[shardIndex(id)]
	mu.Lock()
	return mu.Unlock
}

// Create starts a new session, optionally bound to a wallet address.
func (m *Manager) Create(ctx context.Context, walletAddress string) (*Session, error) {
	s := New(walletAddress)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Append loads the session, appends the messages under the session lock and
// persists the result. The returned session reflects the new history.
func (m *Manager) Append(ctx context.Context, id string, msgs ...Message) (*Session, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Append(m.maxMessages, msgs...)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Delete(ctx, id)
}
