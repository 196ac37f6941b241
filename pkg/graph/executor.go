package graph

import (
	"context"

	"github.com/aretw0/roam/pkg/domain"
)

const executorSystemPrompt = `You are the executor of a mobile-device agent.
You receive a decision payload describing the next UI actions. Translate it
into tool calls, in the order the payload gives them. Call only the tools
you were given, and do not invent actions the payload does not ask for.
Every call must include an agent_thought explaining the step.`

// executor translates the decision payload into concrete tool calls. With no
// payload it records a thought and lets the cycle move on.
type executor struct {
	deps *Deps
}

func (e *executor) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	if s.Decision == "" {
		e.deps.logger().Warn("no decision payload to execute", "session", s.SessionID)
		return &domain.Update{
			Thoughts: []domain.Thought{{
				Stage: StageExecutor,
				Text:  "No structured decisions found, I cannot execute anything.",
			}},
		}, nil
	}

	rationale := s.LastRationale
	if rationale == "" && len(s.Thoughts) > 0 {
		rationale = s.Thoughts[len(s.Thoughts)-1]
	}

	msgs := make([]domain.Message, 0, len(s.ExecMessages)+3)
	msgs = append(msgs,
		domain.SystemMessage(executorSystemPrompt),
		domain.UserMessage(rationale),
		domain.UserMessage(s.Decision),
	)
	msgs = append(msgs, s.ExecMessages...)

	resp, err := e.deps.toolCalls(ctx, StageExecutor, msgs, e.deps.Actions.Specs())
	if err != nil {
		return nil, err
	}

	return &domain.Update{AppendExec: []domain.Message{*resp}}, nil
}
