package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "ChainAgent/internal/errors"
)

const defaultRedisQueueKey = "chainagent:tasks"

// RedisQueue is a list-backed queue: LPUSH to enqueue, BRPOP to dequeue, so
// multiple daemon instances can share the work.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, addr, password string, db int, key string) (*RedisQueue, error) {
	if key == "" {
		key = defaultRedisQueueKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "connect task redis")
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "encode task")
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "push task")
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		// A short block interval keeps ctx cancellation responsive.
		values, err := q.client.BRPop(ctx, 2*time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, apperrors.Wrap(apperrors.CodeQueueFailure, ctx.Err(), "dequeue cancelled")
			}
			continue
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "pop task")
		}
		var t Task
		if err := json.Unmarshal([]byte(values[1]), &t); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "decode task")
		}
		return &t, nil
	}
}

func (q *RedisQueue) Close() error { return q.client.Close() }
