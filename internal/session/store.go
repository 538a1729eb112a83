package session

import "context"

// Store persists sessions. Implementations must refresh the TTL on Save.
type Store interface {
	// Get loads a session by id. Missing or expired sessions return a
	// SESSION_NOT_FOUND error.
	Get(ctx context.Context, id string) (*Session, error)
	// Save writes the session and resets its expiry.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases store resources.
	Close() error
}
