// Package runtime contains the node-graph scheduler the agent stages run on.
// It is a small superstep engine: every superstep executes the ready nodes of
// the current frontier, merges their partial updates into the shared state in
// registration order, then computes the next frontier from the edges and
// conditional routers. Deferred nodes (the convergence barrier) are held back
// until they are the only thing left in the frontier, which is what turns the
// convergence point into a join rather than a race.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/roam/pkg/domain"
)

// End is the terminal route target.
const End = "__end__"

// ErrMaxSupersteps is returned when a run exceeds the configured bound,
// which almost always means the gate logic cycles without making progress.
var ErrMaxSupersteps = errors.New("graph exceeded the superstep limit")

// NodeFunc is one stage of the graph. It reads the state and returns a
// partial update; it must not mutate the state directly.
type NodeFunc func(ctx context.Context, s *domain.State) (*domain.Update, error)

// RouterFunc evaluates the conditional routes leaving a node. It returns the
// labels of every route that should fire this cycle; returning more than one
// label fans the graph out into concurrent branches.
type RouterFunc func(s *domain.State) []string

// Middleware wraps every node invocation (logging, metrics, hook events).
type Middleware func(name string, next NodeFunc) NodeFunc

type router struct {
	fn      RouterFunc
	targets map[string]string // label -> node name or End
}

// Engine is the graph scheduler. Build it once with AddNode/AddEdge/AddRouter
// and reuse it across sessions; Run owns the state for the whole run.
type Engine struct {
	nodes    map[string]NodeFunc
	order    []string // registration order, fixes the merge order
	edges    map[string][]string
	routers  map[string]router
	deferred map[string]bool

	entry      string
	middleware []Middleware
	logger     *slog.Logger
	hooks      domain.Hooks
	maxSteps   int
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

// WithMiddleware composes fn around every node, outermost first.
func WithMiddleware(fn Middleware) Option {
	return func(e *Engine) { e.middleware = append(e.middleware, fn) }
}

// WithHooks attaches observability callbacks. Stage enter/leave fire around
// each node invocation; plan, thought and cycle events fire during the merge,
// after the producing superstep completes.
func WithHooks(hooks domain.Hooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithMaxSupersteps bounds a run; zero keeps the default.
func WithMaxSupersteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates an empty graph scheduler.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string][]string),
		routers:  make(map[string]router),
		deferred: make(map[string]bool),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps: 500,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddNode registers a node under a unique name.
func (e *Engine) AddNode(name string, fn NodeFunc) {
	if _, dup := e.nodes[name]; dup {
		panic("runtime: duplicate node " + name)
	}
	e.nodes[name] = fn
	e.order = append(e.order, name)
}

// AddEdge adds an unconditional edge.
func (e *Engine) AddEdge(from, to string) {
	e.edges[from] = append(e.edges[from], to)
}

// AddRouter attaches a conditional router to a node. Labels returned by fn
// are resolved through targets; an unknown label is a programming error.
func (e *Engine) AddRouter(from string, fn RouterFunc, targets map[string]string) {
	e.routers[from] = router{fn: fn, targets: targets}
}

// SetDeferred marks a node as a barrier: it only runs once every other
// branch scheduled in the current cycle has completed.
func (e *Engine) SetDeferred(name string) {
	e.deferred[name] = true
}

// SetEntry sets the node the run starts at.
func (e *Engine) SetEntry(name string) {
	e.entry = name
}

// Validate checks that every edge and route target resolves to a node.
func (e *Engine) Validate() error {
	if _, ok := e.nodes[e.entry]; !ok {
		return fmt.Errorf("entry node %q is not registered", e.entry)
	}
	for from, tos := range e.edges {
		if _, ok := e.nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
		for _, to := range tos {
			if to != End {
				if _, ok := e.nodes[to]; !ok {
					return fmt.Errorf("edge %s -> %s targets an unregistered node", from, to)
				}
			}
		}
	}
	for from, r := range e.routers {
		if _, ok := e.nodes[from]; !ok {
			return fmt.Errorf("router source %q is not registered", from)
		}
		for label, to := range r.targets {
			if to != End {
				if _, ok := e.nodes[to]; !ok {
					return fmt.Errorf("route %s[%s] -> %s targets an unregistered node", from, label, to)
				}
			}
		}
	}
	return nil
}

// Run steps the graph from the entry node until no node remains scheduled.
// It is the single owner of the state: node updates are merged here, in node
// registration order, after every superstep.
func (e *Engine) Run(ctx context.Context, state *domain.State) error {
	if err := e.Validate(); err != nil {
		return err
	}

	frontier := []string{e.entry}
	for step := 0; len(frontier) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step >= e.maxSteps {
			return fmt.Errorf("%w (%d)", ErrMaxSupersteps, e.maxSteps)
		}

		ready, held := e.partition(frontier)
		if len(ready) == 0 {
			// Only barrier nodes remain: every upstream branch has
			// completed, so they may fire now.
			ready, held = held, nil
		}

		e.logger.Debug("superstep", "step", step, "ready", ready, "held", held)

		updates, err := e.runAll(ctx, ready, state)
		if err != nil {
			return err
		}
		for _, u := range updates {
			state.Apply(u)
			e.emit(ctx, state, u)
		}

		next := held
		for _, name := range ready {
			next = append(next, e.successors(name, state)...)
		}
		frontier = dedupe(next)
	}
	return nil
}

// partition splits the frontier into ready nodes and held-back barriers,
// preserving registration order among the ready nodes so the later update
// merge is deterministic.
func (e *Engine) partition(frontier []string) (ready, held []string) {
	for _, name := range e.order {
		if !slices.Contains(frontier, name) {
			continue
		}
		if e.deferred[name] {
			held = append(held, name)
		} else {
			ready = append(ready, name)
		}
	}
	return ready, held
}

// runAll executes the ready nodes. A single node runs inline; concurrent
// branches (the decision fan-out) are spawned and joined together, and their
// updates are returned in the ready order regardless of completion order.
func (e *Engine) runAll(ctx context.Context, ready []string, state *domain.State) ([]*domain.Update, error) {
	updates := make([]*domain.Update, len(ready))

	if len(ready) == 1 {
		u, err := e.invoke(ctx, ready[0], state)
		if err != nil {
			return nil, err
		}
		updates[0] = u
		return updates, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range ready {
		g.Go(func() error {
			u, err := e.invoke(gctx, name, state)
			if err != nil {
				return err
			}
			updates[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

func (e *Engine) invoke(ctx context.Context, name string, state *domain.State) (*domain.Update, error) {
	fn := e.nodes[name]
	for i := len(e.middleware) - 1; i >= 0; i-- {
		fn = e.middleware[i](name, fn)
	}

	started := time.Now()
	if e.hooks.OnStageEnter != nil {
		e.hooks.OnStageEnter(ctx, &domain.StageEvent{
			Timestamp: started,
			SessionID: state.SessionID,
			Stage:     name,
		})
	}
	u, err := fn(ctx, state)
	if e.hooks.OnStageLeave != nil {
		e.hooks.OnStageLeave(ctx, &domain.StageEvent{
			Timestamp: time.Now(),
			SessionID: state.SessionID,
			Stage:     name,
			Duration:  time.Since(started),
			Err:       err,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}
	return u, nil
}

// emit fires merge-time events for one applied update.
func (e *Engine) emit(ctx context.Context, state *domain.State, u *domain.Update) {
	if u == nil {
		return
	}
	if u.ReplacePlan != nil && e.hooks.OnPlanChanged != nil {
		e.hooks.OnPlanChanged(ctx, &domain.PlanEvent{
			Timestamp: time.Now(),
			SessionID: state.SessionID,
			Plan:      state.Plan.Clone(),
			Replan:    u.Replan,
		})
	}
	if u.BumpCycle && e.hooks.OnCycle != nil {
		e.hooks.OnCycle(ctx, &domain.CycleEvent{
			Timestamp: time.Now(),
			SessionID: state.SessionID,
			Cycle:     state.Cycle,
			State:     state.Clone(),
		})
	}
	if e.hooks.OnThought != nil {
		for _, t := range u.Thoughts {
			if t.Text == "" {
				continue
			}
			e.hooks.OnThought(ctx, &domain.ThoughtEvent{
				Timestamp: time.Now(),
				SessionID: state.SessionID,
				Stage:     t.Stage,
				Text:      t.Text,
			})
		}
	}
}

func (e *Engine) successors(name string, state *domain.State) []string {
	var out []string
	for _, to := range e.edges[name] {
		if to != End {
			out = append(out, to)
		}
	}
	if r, ok := e.routers[name]; ok {
		for _, label := range r.fn(state) {
			to, ok := r.targets[label]
			if !ok {
				e.logger.Warn("router returned unknown label", "node", name, "label", label)
				continue
			}
			if to != End {
				out = append(out, to)
			}
		}
	}
	return out
}

func dedupe(names []string) []string {
	var out []string
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
