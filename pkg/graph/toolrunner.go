package graph

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/aretw0/roam/pkg/actions"
	"github.com/aretw0/roam/pkg/domain"
)

const abortedMessage = "Aborted: a previous tool call failed!"

// errTruncateLen bounds error text in tool telemetry.
const errTruncateLen = 500

// toolRunner executes the tool calls of the executor's latest assistant
// message strictly in order. The first failure short-circuits the batch:
// every remaining call gets a synthetic aborted result without being run.
type toolRunner struct {
	deps *Deps
}

func (t *toolRunner) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	calls := pendingToolCalls(s)
	if len(calls) == 0 {
		return &domain.Update{}, nil
	}

	env := t.buildEnv(s)
	u := &domain.Update{}
	failed := false

	for _, call := range calls {
		var res domain.ToolResult
		var aborted bool

		if failed {
			res = domain.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: abortedMessage,
				IsError: true,
			}
			aborted = true
		} else {
			out := t.deps.Actions.Execute(ctx, env, call.Name, call.Args)
			res = domain.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				Content: out.Content,
				IsError: out.Failed,
			}
			failed = out.Failed
			for k, v := range out.Notes {
				env.Pad[k] = v
			}
			if thought, ok := call.Args["agent_thought"].(string); ok && thought != "" {
				u.Thoughts = append(u.Thoughts, domain.Thought{Stage: StageExecutor, Text: thought})
			}
			u.Thoughts = append(u.Thoughts, domain.Thought{Stage: StageExecutor, Text: out.Content})
		}

		t.emitToolEvent(ctx, s.SessionID, &res, aborted)

		msg := domain.ToolMessage(res)
		u.AppendExec = append(u.AppendExec, msg)
		u.AppendHistory = append(u.AppendHistory, msg)
	}

	u.Scratchpad = env.Pad
	return u, nil
}

func (t *toolRunner) buildEnv(s *domain.State) *actions.Env {
	pad := make(map[string]string, len(s.Scratchpad))
	for k, v := range s.Scratchpad {
		pad[k] = v
	}
	env := &actions.Env{Device: t.deps.Device, Pad: pad}
	if s.Snapshot != nil {
		env.Elements = s.Snapshot.UIElements
		env.Width = s.Snapshot.Width
		env.Height = s.Snapshot.Height
	}
	return env
}

func (t *toolRunner) emitToolEvent(ctx context.Context, sessionID string, res *domain.ToolResult, aborted bool) {
	status := "succeeded"
	if res.IsError {
		status = "failed"
	}
	t.deps.logger().Info("tool call "+status, "tool", res.Name, "aborted", aborted)

	if t.deps.Hooks.OnToolResult == nil {
		return
	}
	errText := ""
	if res.IsError {
		errText = truncateErr(res.Content)
	}
	t.deps.Hooks.OnToolResult(ctx, &domain.ToolEvent{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Tool:      res.Name,
		CallID:    res.CallID,
		IsError:   res.IsError,
		Error:     errText,
		Aborted:   aborted,
	})
}

// truncateErr caps error text for telemetry, cutting on a rune boundary so a
// multi-byte character is never split.
func truncateErr(s string) string {
	if len(s) <= errTruncateLen {
		return s
	}
	cut := errTruncateLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// pendingToolCalls returns the calls of the most recent assistant message in
// the executor working context, or nil when the executor skipped.
func pendingToolCalls(s *domain.State) []domain.ToolCall {
	for i := len(s.ExecMessages) - 1; i >= 0; i-- {
		m := s.ExecMessages[i]
		if m.Role == domain.RoleAssistant {
			return m.ToolCalls
		}
		if m.Role == domain.RoleTool {
			// The latest batch already ran.
			return nil
		}
	}
	return nil
}
