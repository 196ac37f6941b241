package ports

import (
	"context"

	"github.com/aretw0/roam/pkg/domain"
)

// StateStore persists orchestration state per session. It is what makes a
// running session observable from the outside (HTTP/MCP surfaces) and
// resumable after the process stops.
type StateStore interface {
	// Save persists the state for a given session ID.
	Save(ctx context.Context, sessionID string, state *domain.State) error

	// Load retrieves the state for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.State, error)

	// Delete removes the state for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the known session IDs.
	List(ctx context.Context) ([]string, error)
}
