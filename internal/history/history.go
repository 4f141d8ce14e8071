// Package history persists per-session conversation turns with a sliding expiry.
package history

import "context"

// Turn roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Turn is one message in a conversation. Turns are immutable once committed.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store holds ordered per-session turn lists. Every mutation refreshes the
// session's expiry window; reading an unknown or expired session yields an
// empty history, and clearing one is not an error.
type Store interface {
	// Append adds a turn to the end of the session's history.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// ReadAll returns the session's turns in insertion order.
	ReadAll(ctx context.Context, sessionID string) ([]Turn, error)

	// Clear removes the session's history. Idempotent.
	Clear(ctx context.Context, sessionID string) error

	// Close releases the store's resources.
	Close() error
}
