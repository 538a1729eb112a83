// Package task runs chat turns asynchronously: a turn is enqueued, picked up
// by a worker, run through the orchestrator and its outcome recorded for
// polling.
package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status of a deferred turn.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task is one deferred chat turn.
type Task struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id,omitempty"`
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Chain         string `json:"chain,omitempty"`
	EnqueuedAt    int64  `json:"enqueued_at"`
}

// NewTask stamps a task with an id and enqueue time.
func NewTask(sessionID, message string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Message:    message,
		EnqueuedAt: time.Now().Unix(),
	}
}

// Record tracks a task through its lifecycle.
type Record struct {
	Task      Task   `json:"task"`
	Status    Status `json:"status"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"` // set once the turn ran
	Error     string `json:"error,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Queue moves tasks between the API and the workers.
type Queue interface {
	// Enqueue adds a task.
	Enqueue(ctx context.Context, t *Task) error
	// Dequeue blocks until a task is available or the context ends.
	Dequeue(ctx context.Context) (*Task, error)
	// Close stops the queue.
	Close() error
}

// Store tracks task status for polling.
type Store interface {
	// Put upserts a record.
	Put(ctx context.Context, r *Record) error
	// Get returns the record for a task id.
	Get(ctx context.Context, id string) (*Record, error)
	// Close releases store resources.
	Close() error
}
