package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/roam/pkg/domain"
)

const orchestratorSystemPrompt = `You are the orchestrator of a mobile-device
agent. You review the subgoals the decision stage reported complete and judge,
from the plan and the recorded reasoning, whether they truly are complete and
whether the plan is still viable.

Respond with a JSON object:
{"completed_subgoal_ids": ["..."], "needs_replanning": false, "reason": "..."}

Set needs_replanning to true only when the current subgoal cannot succeed and
the plan as a whole must be rebuilt.`

type orchestratorOutput struct {
	CompletedSubgoalIDs []string `json:"completed_subgoal_ids"`
	NeedsReplanning     bool     `json:"needs_replanning"`
	Reason              string   `json:"reason"`
}

// orchestrator owns subgoal lifecycle transitions. Every branch clears the
// reported-complete ids so one report is never reviewed twice.
type orchestrator struct {
	deps *Deps
}

func (o *orchestrator) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	plan := s.Plan.Clone()
	cleared := []string{}

	// Fresh plan, or the previous subgoal finished outside review: start
	// the next one without consulting the model.
	if plan.NothingStarted() || plan.Current() == nil {
		fresh := plan.NothingStarted()
		started := plan.StartNext()
		var thought string
		switch {
		case started == nil:
			thought = "No subgoal left to start."
		case fresh:
			thought = fmt.Sprintf("Starting the first subgoal: %s", started)
		default:
			thought = fmt.Sprintf("Starting the next subgoal: %s", started)
		}
		return &domain.Update{
			ReplacePlan:    plan,
			SetCompleteIDs: &cleared,
			Thoughts:       []domain.Thought{{Stage: StageOrchestrator, Text: thought}},
		}, nil
	}

	toExamine := plan.ByIDs(s.CompleteIDs)
	if len(toExamine) == 0 {
		return &domain.Update{
			SetCompleteIDs: &cleared,
			Thoughts:       []domain.Thought{{Stage: StageOrchestrator, Text: "No subgoal to examine."}},
		}, nil
	}

	lines := make([]string, len(toExamine))
	for i, sg := range toExamine {
		lines[i] = sg.String()
	}
	prompt := fmt.Sprintf("Goal: %s\n\nPlan:\n%s\n\nSubgoals reported complete:\n%s\n\nRecorded reasoning:\n%s",
		s.Goal, plan.String(), strings.Join(lines, "\n"), strings.Join(s.Thoughts, "\n"))

	msgs := []domain.Message{
		domain.SystemMessage(orchestratorSystemPrompt),
		domain.UserMessage(prompt),
	}
	var out orchestratorOutput
	if err := o.deps.structured(ctx, StageOrchestrator, msgs, &out); err != nil {
		return nil, err
	}

	thoughts := []domain.Thought{{Stage: StageOrchestrator, Text: out.Reason}}

	if out.NeedsReplanning {
		plan.FailCurrent(out.Reason)
		thoughts = append(thoughts, domain.Thought{Stage: StageOrchestrator, Text: "==== END OF PLAN, REPLANNING ===="})
		return &domain.Update{ReplacePlan: plan, SetCompleteIDs: &cleared, Thoughts: thoughts}, nil
	}

	current := plan.Current()
	plan.CompleteByIDs(out.CompletedSubgoalIDs, out.Reason)

	if plan.AllSucceeded() {
		o.deps.logger().Info("all subgoals completed", "session", s.SessionID)
		return &domain.Update{ReplacePlan: plan, SetCompleteIDs: &cleared, Thoughts: thoughts}, nil
	}

	confirmed := false
	for _, id := range out.CompletedSubgoalIDs {
		if current != nil && id == current.ID {
			confirmed = true
		}
	}
	if !confirmed {
		// The current subgoal stays pending; keep working on it.
		return &domain.Update{ReplacePlan: plan, SetCompleteIDs: &cleared, Thoughts: thoughts}, nil
	}

	started := plan.StartNext()
	if started != nil {
		thoughts = append(thoughts, domain.Thought{
			Stage: StageOrchestrator,
			Text:  fmt.Sprintf("==== NEXT SUBGOAL: %s ====", started),
		})
	}
	return &domain.Update{ReplacePlan: plan, SetCompleteIDs: &cleared, Thoughts: thoughts}, nil
}
