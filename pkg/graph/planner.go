package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/roam/pkg/domain"
)

const plannerSystemPrompt = `You are the planner of a mobile-device agent.
Given a user goal, produce an ordered list of small, concrete subgoals that
an execution agent can carry out on the device one at a time.

Rules:
- Each subgoal is a single observable step (open an app, fill a field, submit a form).
- Do not invent subgoals for things the goal does not require.
- When replanning after a failure, account for what already succeeded and for
  the recorded reasoning; do not repeat steps that are already done.

The execution agent can perform these actions:
%s

Respond with a JSON object: {"subgoals": [{"description": "..."}, ...]}.`

// plannerOutput is the structured response shape.
type plannerOutput struct {
	Subgoals []struct {
		Description string `json:"description"`
	} `json:"subgoals"`
}

// planner produces or reworks the subgoal plan. It runs at the start of a
// session and again whenever the convergence gate reports a failed subgoal.
type planner struct {
	deps *Deps
}

func (p *planner) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	replan := s.Plan.AnyFailed()

	var prompt strings.Builder
	if replan {
		fmt.Fprintf(&prompt, "Replan for this goal: %s\n\n", s.Goal)
		fmt.Fprintf(&prompt, "Previous plan:\n%s\n\n", s.Plan.String())
		if len(s.Thoughts) > 0 {
			fmt.Fprintf(&prompt, "Recorded reasoning so far:\n%s\n", strings.Join(s.Thoughts, "\n"))
		}
	} else {
		fmt.Fprintf(&prompt, "Plan for this goal: %s\n", s.Goal)
	}
	if p.deps.Config.LockedApp != "" {
		fmt.Fprintf(&prompt, "\nEvery subgoal must stay inside the app %q.\n", p.deps.Config.LockedApp)
	}

	msgs := []domain.Message{
		domain.SystemMessage(fmt.Sprintf(plannerSystemPrompt, strings.Join(p.deps.Actions.Names(), ", "))),
		domain.UserMessage(prompt.String()),
	}

	var out plannerOutput
	if err := p.deps.structured(ctx, StagePlanner, msgs, &out); err != nil {
		return nil, err
	}
	if len(out.Subgoals) == 0 {
		return nil, fmt.Errorf("%w: planner produced no subgoals", domain.ErrEmptyPlan)
	}

	// The previous plan's ids are discarded on replan; the new plan starts
	// entirely NOT_STARTED.
	plan := make(domain.Plan, 0, len(out.Subgoals))
	for _, sg := range out.Subgoals {
		plan = append(plan, domain.NewSubgoal(sg.Description))
	}

	p.deps.logger().Info("plan generated", "session", s.SessionID, "subgoals", len(plan), "replan", replan)

	return &domain.Update{ReplacePlan: plan, Replan: replan}, nil
}
