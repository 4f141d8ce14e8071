// Package session owns session identity creation and reset.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"newsrag/internal/history"
)

// Manager creates and resets session identities. Session ids are opaque
// uuid-v4 tokens; an id is valid whether or not any history exists under it,
// so unknown ids simply start with an empty conversation.
type Manager struct {
	store history.Store
}

// NewManager creates a session manager backed by the given history store.
func NewManager(store history.Store) *Manager {
	return &Manager{store: store}
}

// Resolve returns the session id to use for a query. A non-empty supplied id
// passes through unchanged; an empty one yields a fresh id with created=true
// so the caller can announce it to the client before any other event.
func (m *Manager) Resolve(suppliedID string) (id string, created bool) {
	if suppliedID != "" {
		return suppliedID, false
	}
	return uuid.NewString(), true
}

// Reset clears the history for currentID and returns a fresh session id.
// Clearing a nonexistent session is not an error. The new id is usable even
// when the clear fails; the error is returned so the caller can log it.
func (m *Manager) Reset(ctx context.Context, currentID string) (string, error) {
	newID := uuid.NewString()
	if currentID == "" {
		return newID, nil
	}
	if err := m.store.Clear(ctx, currentID); err != nil {
		return newID, fmt.Errorf("clear session %s: %w", currentID, err)
	}
	return newID, nil
}
