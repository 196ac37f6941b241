// Package graph builds the agent orchestration graph: planner, orchestrator,
// context collector, decision, executor, tool runner, history compactor and
// the convergence gate, wired onto the runtime scheduler.
package graph

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/roam/internal/runtime"
	"github.com/aretw0/roam/pkg/actions"
	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/ports"
)

// Stage names, also the node names in the scheduler.
const (
	StagePlanner      = "planner"
	StageOrchestrator = "orchestrator"
	StageCollector    = "collector"
	StageDecision     = "decision"
	StageExecutor     = "executor"
	StageTools        = "tools"
	StageCompactor    = "compactor"
	StageConvergence  = "convergence"
)

// Config tunes graph behavior. The zero value is usable; Normalize fills
// the defaults.
type Config struct {
	// LockedApp pins the session to one application package. Empty
	// disables the invariant.
	LockedApp string

	// MaxHistory is the compaction threshold on the action transcript.
	MaxHistory int

	// AppLockThoughts caps how many recent thoughts the relaunch
	// sub-decision sees.
	AppLockThoughts int

	// LaunchAttempts bounds app launch retries; LaunchWait bounds the
	// foreground poll per attempt and LaunchPoll is the poll interval.
	LaunchAttempts int
	LaunchWait     time.Duration
	LaunchPoll     time.Duration

	// MaxSupersteps bounds one graph run.
	MaxSupersteps int
}

// Normalize returns the config with defaults applied.
func (c Config) Normalize() Config {
	if c.MaxHistory <= 0 {
		c.MaxHistory = 40
	}
	if c.AppLockThoughts <= 0 {
		c.AppLockThoughts = 25
	}
	if c.LaunchAttempts <= 0 {
		c.LaunchAttempts = 3
	}
	if c.LaunchWait <= 0 {
		c.LaunchWait = 15 * time.Second
	}
	if c.LaunchPoll <= 0 {
		c.LaunchPoll = time.Second
	}
	if c.MaxSupersteps <= 0 {
		c.MaxSupersteps = 500
	}
	return c
}

// Deps are the collaborators every stage may draw on.
type Deps struct {
	Device    ports.DeviceController
	Inference ports.Inference
	Actions   *actions.Registry
	Hooks     domain.Hooks
	Logger    *slog.Logger
	Config    Config

	// Clock is swappable in tests; nil means real time.
	Clock Clock
}

// Clock is the time source the launch poll uses.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (d *Deps) clock() Clock {
	if d.Clock != nil {
		return d.Clock
	}
	return realClock{}
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Build wires the full graph. The convergence node is the deferred barrier
// joining the orchestrator review and the executor branch; its router is the
// gate that decides replan, another cycle, or the end of the run.
func Build(deps *Deps, opts ...runtime.Option) *runtime.Engine {
	deps.Config = deps.Config.Normalize()

	opts = append(opts,
		runtime.WithLogger(deps.logger()),
		runtime.WithHooks(deps.Hooks),
		runtime.WithMaxSupersteps(deps.Config.MaxSupersteps),
	)
	eng := runtime.NewEngine(opts...)

	eng.AddNode(StagePlanner, (&planner{deps: deps}).run)
	eng.AddNode(StageOrchestrator, (&orchestrator{deps: deps}).run)
	eng.AddNode(StageCollector, (&collector{deps: deps}).run)
	eng.AddNode(StageDecision, (&decision{deps: deps}).run)
	eng.AddNode(StageExecutor, (&executor{deps: deps}).run)
	eng.AddNode(StageTools, (&toolRunner{deps: deps}).run)
	eng.AddNode(StageCompactor, (&compactor{deps: deps}).run)
	eng.AddNode(StageConvergence, convergence)
	eng.SetDeferred(StageConvergence)
	eng.SetEntry(StagePlanner)

	eng.AddEdge(StagePlanner, StageOrchestrator)
	eng.AddEdge(StageOrchestrator, StageConvergence)
	eng.AddEdge(StageCollector, StageDecision)

	eng.AddRouter(StageDecision, routeAfterDecision, map[string]string{
		"review_subgoals":   StageOrchestrator,
		"execute_decisions": StageExecutor,
	})

	eng.AddRouter(StageExecutor, routeAfterExecutor, map[string]string{
		"invoke_tools": StageTools,
		"skip":         StageCompactor,
	})
	eng.AddEdge(StageTools, StageCompactor)
	eng.AddEdge(StageCompactor, StageConvergence)

	eng.AddRouter(StageConvergence, convergenceGate, map[string]string{
		"replan":   StagePlanner,
		"continue": StageCollector,
		"end":      runtime.End,
	})

	return eng
}

// routeAfterDecision fans the cycle out after the decision stage. The
// orchestrator reviews subgoals when completions were reported or no decision
// was produced; the executor runs only when there is a decision to act on.
// Both conditions holding at once schedules both branches concurrently.
func routeAfterDecision(s *domain.State) []string {
	var routes []string
	if len(s.CompleteIDs) > 0 || s.Decision == "" {
		routes = append(routes, "review_subgoals")
	}
	if s.Decision != "" {
		routes = append(routes, "execute_decisions")
	}
	return routes
}

// routeAfterExecutor sends the run to the tool runner only when the executor
// actually requested tool calls.
func routeAfterExecutor(s *domain.State) []string {
	if len(s.ExecMessages) > 0 {
		last := s.ExecMessages[len(s.ExecMessages)-1]
		if last.Role == domain.RoleAssistant && len(last.ToolCalls) > 0 {
			return []string{"invoke_tools"}
		}
	}
	return []string{"skip"}
}

// convergence is the barrier node. Both branches have merged by the time it
// runs; it advances the cycle counter and marks terminal runs done.
func convergence(_ context.Context, s *domain.State) (*domain.Update, error) {
	u := &domain.Update{BumpCycle: true}
	if !s.Plan.AnyFailed() && (s.Plan.AllSucceeded() || s.Plan.Current() == nil) {
		u.Done = true
	}
	return u, nil
}

// convergenceGate decides what happens after a full cycle.
func convergenceGate(s *domain.State) []string {
	switch {
	case s.Plan.AnyFailed():
		return []string{"replan"}
	case s.Plan.AllSucceeded():
		return []string{"end"}
	case s.Plan.Current() == nil:
		// No pending subgoal and nothing failed: the orchestrator had
		// nothing left to start, so the run is over.
		return []string{"end"}
	default:
		return []string{"continue"}
	}
}
