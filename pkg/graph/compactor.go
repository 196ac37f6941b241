package graph

import (
	"context"

	"github.com/aretw0/roam/pkg/domain"
)

// compactor keeps the action transcript bounded. When the transcript grows
// past the threshold it drops a prefix, cutting at the most recent user or
// tool message boundary inside the removable range so an assistant message
// never loses the exchange it answers.
type compactor struct {
	deps *Deps
}

func (c *compactor) run(_ context.Context, s *domain.State) (*domain.Update, error) {
	excess := len(s.History) - c.deps.Config.MaxHistory
	if excess <= 0 {
		return &domain.Update{}, nil
	}

	cut := -1
	for i := excess - 1; i >= 0; i-- {
		role := s.History[i].Role
		if role == domain.RoleUser || role == domain.RoleTool {
			cut = i
			break
		}
	}
	if cut < 0 {
		return &domain.Update{}, nil
	}

	c.deps.logger().Debug("compacting history", "session", s.SessionID, "removed", cut+1, "kept", len(s.History)-cut-1)
	return &domain.Update{TrimHistory: cut + 1}, nil
}
