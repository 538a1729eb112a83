package walletauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "ChainAgent/internal/errors"
)

const nonceKeyPrefix = "nonce:"

// NonceStore holds single-use challenges keyed by wallet address. Consume
// removes the nonce whether or not the caller goes on to verify successfully.
type NonceStore interface {
	// Issue stores a nonce for the address, replacing any previous one.
	Issue(ctx context.Context, address, nonce string, ttl time.Duration) error
	// Consume atomically fetches and deletes the nonce. A missing or expired
	// nonce returns NONCE_EXPIRED.
	Consume(ctx context.Context, address string) (string, error)
	// Close releases store resources.
	Close() error
}

// GenerateNonce returns 32 random bytes hex encoded.
func GenerateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type memoryNonce struct {
	nonce     string
	expiresAt time.Time
}

// MemoryNonceStore keeps nonces in process memory.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]memoryNonce
	now     func() time.Time
}

// NewMemoryNonceStore creates an in-memory nonce store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		entries: make(map[string]memoryNonce),
		now:     time.Now,
	}
}

func (m *MemoryNonceStore) Issue(_ context.Context, address, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[address] = memoryNonce{nonce: nonce, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryNonceStore) Consume(_ context.Context, address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[address]
	delete(m.entries, address)
	if !ok || m.now().After(entry.expiresAt) {
		return "", apperrors.New(apperrors.CodeNonceExpired, "",
			apperrors.WithMetadata("address", address))
	}
	return entry.nonce, nil
}

func (m *MemoryNonceStore) Close() error { return nil }

// RedisNonceStore stores nonces in Redis with a per-key TTL. Consume uses
// GETDEL so concurrent verifications cannot both observe the same nonce.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedisNonceStore connects to Redis and verifies the connection.
func NewRedisNonceStore(ctx context.Context, addr, password string, db int) (*RedisNonceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "connect nonce redis")
	}
	return &RedisNonceStore{client: client}, nil
}

func (r *RedisNonceStore) Issue(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := r.client.Set(ctx, nonceKeyPrefix+address, nonce, ttl).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "store nonce")
	}
	return nil
}

func (r *RedisNonceStore) Consume(ctx context.Context, address string) (string, error) {
	nonce, err := r.client.GetDel(ctx, nonceKeyPrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.New(apperrors.CodeNonceExpired, "",
			apperrors.WithMetadata("address", address))
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeStorageFailure, err, "consume nonce")
	}
	return nonce, nil
}

func (r *RedisNonceStore) Close() error { return r.client.Close() }
