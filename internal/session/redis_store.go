package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "ChainAgent/internal/errors"
)

const redisKeyPrefix = "session:"

// RedisStore persists sessions as JSON blobs with a per-key TTL, so expiry is
// enforced by Redis itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "connect session redis")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "", apperrors.WithMetadata("session_id", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "read session")
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "decode session")
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "encode session")
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "write session")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "delete session")
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
