package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/roam/pkg/domain"
)

const decisionSystemPrompt = `You are the decision stage of a mobile-device
agent. From the current subgoal, the fresh device snapshot and the feedback
from the previous action batch, decide the next UI actions, and report any
subgoals that are now complete.

Respond with a JSON object:
{
  "decisions": "stringified JSON describing the next actions, or null when no action is needed",
  "decisions_reason": "why these actions",
  "goals_completion_reason": "why the reported subgoals are complete, or null",
  "complete_subgoals_by_ids": ["..."]
}

Available actions:
%s`

type decisionOutput struct {
	Decisions             string   `json:"decisions"`
	DecisionsReason       string   `json:"decisions_reason"`
	GoalsCompletionReason string   `json:"goals_completion_reason"`
	CompleteSubgoalIDs    []string `json:"complete_subgoals_by_ids"`
}

// Model responses that mean "no decision" rather than a payload.
var emptyTokens = map[string]bool{"{}": true, "[]": true, "null": true, "": true, "None": true}

func normalizeSentinel(s string) string {
	if emptyTokens[strings.TrimSpace(s)] {
		return ""
	}
	return s
}

// decision consumes the snapshot and produces the action payload for the
// executor plus the completion report for the orchestrator. The snapshot and
// the executor's working context are cleared on every pass so the next cycle
// starts from fresh observations.
type decision struct {
	deps *Deps
}

func (d *decision) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	msgs := d.buildMessages(s)

	var out decisionOutput
	if err := d.deps.structured(ctx, StageDecision, msgs, &out); err != nil {
		return nil, err
	}

	out.Decisions = normalizeSentinel(out.Decisions)
	out.GoalsCompletionReason = normalizeSentinel(out.GoalsCompletionReason)

	var parts []string
	if out.DecisionsReason != "" {
		parts = append(parts, "Decisions reason: "+out.DecisionsReason)
	}
	if out.GoalsCompletionReason != "" {
		parts = append(parts, "Goals completion reason: "+out.GoalsCompletionReason)
	}
	thought := strings.Join(parts, "\n\n")

	completeIDs := out.CompleteSubgoalIDs
	if completeIDs == nil {
		completeIDs = []string{}
	}

	return &domain.Update{
		SetDecision:    &out.Decisions,
		SetCompleteIDs: &completeIDs,
		SetRationale:   &thought,
		ClearSnapshot:  true,
		ClearExec:      true,
		Thoughts:       []domain.Thought{{Stage: StageDecision, Text: thought}},
	}, nil
}

func (d *decision) buildMessages(s *domain.State) []domain.Message {
	system := fmt.Sprintf(decisionSystemPrompt, strings.Join(d.deps.Actions.Names(), ", "))
	system += fmt.Sprintf("\n\nGoal: %s\n\nPlan:\n%s", s.Goal, s.Plan.String())
	if cur := s.Plan.Current(); cur != nil {
		system += fmt.Sprintf("\n\nCurrent subgoal: %s", cur)
	}
	system += "\n\nPrevious action batch:\n" + executorFeedback(s)
	if d.deps.Config.LockedApp != "" {
		system += fmt.Sprintf("\n\nThe session is locked to the app %q.", d.deps.Config.LockedApp)
	}

	msgs := []domain.Message{domain.SystemMessage(system)}

	var device strings.Builder
	device.WriteString("Here is my device info:\n")
	if s.Snapshot != nil {
		if s.Snapshot.Width > 0 {
			fmt.Fprintf(&device, "Screen size: %dx%d\n", s.Snapshot.Width, s.Snapshot.Height)
		}
		if s.Snapshot.DeviceDate != "" {
			fmt.Fprintf(&device, "Device date: %s\n", s.Snapshot.DeviceDate)
		}
		if s.Snapshot.FocusedApp != "" {
			fmt.Fprintf(&device, "Focused app: %s\n", s.Snapshot.FocusedApp)
		}
	}
	msgs = append(msgs, domain.UserMessage(device.String()))

	for _, t := range s.Thoughts {
		msgs = append(msgs, domain.AssistantMessage(t))
	}

	if s.Snapshot != nil && len(s.Snapshot.UIElements) > 0 {
		if raw, err := json.MarshalIndent(s.Snapshot.UIElements, "", "  "); err == nil {
			msgs = append(msgs, domain.UserMessage("Here is the UI hierarchy:\n"+string(raw)))
		}
	}

	if s.Snapshot != nil && s.Snapshot.ScreenshotB64 != "" {
		msgs = append(msgs, domain.ImageMessage("Here is the current screenshot:", s.Snapshot.ScreenshotB64))
	}

	return msgs
}

// executorFeedback summarizes the last decision payload and the tool results
// it produced, so the model sees what its previous batch achieved.
func executorFeedback(s *domain.State) string {
	if s.Decision == "" {
		return "None."
	}
	var results []string
	for _, m := range s.ExecMessages {
		if m.Role == domain.RoleTool && m.Result != nil {
			status := "ok"
			if m.Result.IsError {
				status = "error"
			}
			results = append(results, fmt.Sprintf("- %s (%s): %s", m.Result.Name, status, m.Result.Content))
		}
	}
	return fmt.Sprintf("Latest UI decisions:\n%s\n\nExecutor feedback:\n%s",
		s.Decision, strings.Join(results, "\n"))
}
