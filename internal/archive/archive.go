// Package archive keeps a durable record of completed conversation turns,
// independent of the TTL-bound session store.
package archive

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Turn statuses.
const (
	StatusDone      = "done"
	StatusExhausted = "exhausted"
)

// Turn is one completed request/response exchange.
type Turn struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	WalletAddress    string    `json:"wallet_address,omitempty"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	ToolCalls        string    `json:"tool_calls,omitempty"` // JSON encoded summaries
	Iterations       int       `json:"iterations"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewTurn stamps a turn with an id and creation time.
func NewTurn(sessionID string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    StatusDone,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists turns.
type Store interface {
	// SaveTurn writes one completed turn.
	SaveTurn(ctx context.Context, turn *Turn) error
	// ListBySession returns the most recent turns for a session, newest
	// first, up to limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Turn, error)
	// ListRecent returns the most recent turns across all sessions, newest
	// first, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*Turn, error)
	// Close releases store resources.
	Close() error
}
