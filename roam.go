// Package roam runs goal-driven automation sessions against a mobile device.
// A session plans a goal into subgoals, then cycles through observing the
// screen, deciding the next actions, executing them and reviewing progress
// until the goal completes or the plan is declared unachievable.
package roam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/roam/internal/logging"
	"github.com/aretw0/roam/pkg/actions"
	"github.com/aretw0/roam/pkg/adapters/memory"
	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/graph"
	"github.com/aretw0/roam/pkg/inference"
	"github.com/aretw0/roam/pkg/ports"
)

// Version is the library version.
const Version = "0.3.0"

// Engine runs sessions. Build one with New and reuse it; each Run creates an
// isolated session state.
type Engine struct {
	device    ports.DeviceController
	inference ports.Inference
	store     ports.StateStore
	registry  *actions.Registry
	hooks     []domain.Hooks
	logger    *slog.Logger
	config    graph.Config
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHooks attaches lifecycle hooks; repeated use accumulates.
func WithHooks(hooks domain.Hooks) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, hooks) }
}

// WithStore sets the session store. Defaults to an in-memory store.
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithConfig sets the graph configuration.
func WithConfig(cfg graph.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// New creates an engine from a device controller and an inference client.
func New(device ports.DeviceController, inference ports.Inference, opts ...Option) (*Engine, error) {
	if device == nil {
		return nil, fmt.Errorf("roam: a device controller is required")
	}
	if inference == nil {
		return nil, fmt.Errorf("roam: an inference client is required")
	}
	e := &Engine{
		device:    device,
		inference: inference,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	e.registry = actions.NewRegistry(e.logger)
	e.config = e.config.Normalize()
	return e, nil
}

// Run executes one session for a goal and returns its final state. The state
// is persisted under its session id after every completed cycle and on every
// outcome, including failures, so a running session is observable from the
// outside and a finished one can be inspected.
func (e *Engine) Run(ctx context.Context, goal string) (*domain.State, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("roam: goal must not be empty")
	}

	sessionID := uuid.NewString()
	state := domain.NewState(sessionID, goal)
	log := logging.ForSession(e.logger, sessionID)

	deps := e.deps()
	deps.Logger = log
	deps.Hooks = domain.CombineHooks(deps.Hooks, domain.Hooks{
		OnCycle: func(ctx context.Context, ev *domain.CycleEvent) {
			if err := e.store.Save(ctx, ev.SessionID, ev.State); err != nil {
				log.Error("failed to persist cycle", "cycle", ev.Cycle, "err", err)
			}
		},
	})

	log.Info("session started", "goal", goal)

	graph.PrepareSession(ctx, deps, state)
	eng := graph.Build(deps)

	runErr := eng.Run(ctx, state)
	if err := e.store.Save(ctx, sessionID, state); err != nil {
		log.Error("failed to persist session", "err", err)
	}

	if runErr != nil {
		log.Error("session failed", "err", runErr)
		return state, fmt.Errorf("session %s: %w", sessionID, runErr)
	}
	log.Info("session finished", "cycles", state.Cycle, "done", state.Done)
	return state, nil
}

// Session loads a persisted session state.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.State, error) {
	return e.store.Load(ctx, sessionID)
}

// Sessions lists persisted session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// DeleteSession removes a persisted session.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.store.Delete(ctx, sessionID)
}

func (e *Engine) deps() *graph.Deps {
	return &graph.Deps{
		Device:    e.device,
		Inference: e.inference,
		Actions:   e.registry,
		Hooks:     domain.CombineHooks(e.hooks...),
		Logger:    e.logger,
		Config:    e.config,
	}
}

// ExtractOutput is the result of an Extract call.
type ExtractOutput struct {
	Found  bool   `json:"found"`
	Output string `json:"output"`
	Reason string `json:"reason"`
}

const extractSystemPrompt = `You dig through the recorded transcript of an
automation session to answer a data request. Extract only what the data
actually contains; never invent values.

Respond with a JSON object:
{"found": true, "output": "the extracted data, or null", "reason": "what you looked for and how you decided"}`

// Extract mines a finished session's reasoning log and scratchpad for a
// piece of data, such as a confirmation number the run surfaced.
func (e *Engine) Extract(ctx context.Context, state *domain.State, request string) (*ExtractOutput, error) {
	var data strings.Builder
	data.WriteString("Recorded reasoning:\n")
	data.WriteString(strings.Join(state.Thoughts, "\n"))
	if len(state.Scratchpad) > 0 {
		data.WriteString("\n\nSaved notes:\n")
		for k, v := range state.Scratchpad {
			fmt.Fprintf(&data, "%s: %s\n", k, v)
		}
	}

	msgs := []domain.Message{
		domain.SystemMessage(extractSystemPrompt),
		domain.UserMessage(fmt.Sprintf("%s\nHere is the data you must dig:\n%s", request, data.String())),
	}

	call := func(fallback bool) func(context.Context) (*ExtractOutput, error) {
		return func(ctx context.Context) (*ExtractOutput, error) {
			var out ExtractOutput
			if err := e.inference.Structured(ctx, "extract", fallback, msgs, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}
	}
	return inference.Call(ctx, inference.Options{Stage: "extract", Logger: e.logger},
		call(false), call(true))
}
