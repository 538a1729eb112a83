package task

import (
	"context"
	"sync"

	apperrors "ChainAgent/internal/errors"
)

// MemoryQueue is a buffered in-process queue.
type MemoryQueue struct {
	ch        chan *Task
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue creates a queue holding up to capacity pending tasks.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		ch:   make(chan *Task, capacity),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t *Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return apperrors.New(apperrors.CodeQueueFailure, "queue is closed")
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.CodeQueueFailure, ctx.Err(), "enqueue cancelled")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.ch:
		return t, nil
	case <-q.done:
		return nil, apperrors.New(apperrors.CodeQueueFailure, "queue is closed")
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, ctx.Err(), "dequeue cancelled")
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
