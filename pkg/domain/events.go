package domain

import (
	"context"
	"time"
)

// StageEvent describes entry into or exit from a graph stage.
type StageEvent struct {
	Timestamp time.Time
	SessionID string
	Stage     string
	Duration  time.Duration // zero on enter
	Err       error         // non-nil on failed exit
}

// PlanEvent describes a wholesale plan replacement or in-place mutation.
type PlanEvent struct {
	Timestamp time.Time
	SessionID string
	Plan      Plan
	Replan    bool
}

// ThoughtEvent is one reasoning entry produced by a stage.
type ThoughtEvent struct {
	Timestamp time.Time
	SessionID string
	Stage     string
	Text      string
}

// ToolEvent describes a single tool-call execution outcome.
type ToolEvent struct {
	Timestamp time.Time
	SessionID string
	Tool      string
	CallID    string
	IsError   bool
	Error     string // truncated, empty on success
	Aborted   bool   // synthetic result, call never ran
}

// CycleEvent fires each time the convergence barrier completes a cycle.
// State is an isolated clone, safe to hand to stores and watchers.
type CycleEvent struct {
	Timestamp time.Time
	SessionID string
	Cycle     int
	State     *State
}

// Hooks are fire-and-forget observability callbacks. All fields are
// optional; the engine never consumes a return value from them.
type Hooks struct {
	OnStageEnter  func(context.Context, *StageEvent)
	OnStageLeave  func(context.Context, *StageEvent)
	OnPlanChanged func(context.Context, *PlanEvent)
	OnThought     func(context.Context, *ThoughtEvent)
	OnToolResult  func(context.Context, *ToolEvent)
	OnCycle       func(context.Context, *CycleEvent)
	OnFallback    func(ctx context.Context, stage string)
}

// CombineHooks fans an event out to every hook set in order.
func CombineHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnStageEnter: func(ctx context.Context, e *StageEvent) {
			for _, h := range hooks {
				if h.OnStageEnter != nil {
					h.OnStageEnter(ctx, e)
				}
			}
		},
		OnStageLeave: func(ctx context.Context, e *StageEvent) {
			for _, h := range hooks {
				if h.OnStageLeave != nil {
					h.OnStageLeave(ctx, e)
				}
			}
		},
		OnPlanChanged: func(ctx context.Context, e *PlanEvent) {
			for _, h := range hooks {
				if h.OnPlanChanged != nil {
					h.OnPlanChanged(ctx, e)
				}
			}
		},
		OnThought: func(ctx context.Context, e *ThoughtEvent) {
			for _, h := range hooks {
				if h.OnThought != nil {
					h.OnThought(ctx, e)
				}
			}
		},
		OnToolResult: func(ctx context.Context, e *ToolEvent) {
			for _, h := range hooks {
				if h.OnToolResult != nil {
					h.OnToolResult(ctx, e)
				}
			}
		},
		OnCycle: func(ctx context.Context, e *CycleEvent) {
			for _, h := range hooks {
				if h.OnCycle != nil {
					h.OnCycle(ctx, e)
				}
			}
		},
		OnFallback: func(ctx context.Context, stage string) {
			for _, h := range hooks {
				if h.OnFallback != nil {
					h.OnFallback(ctx, stage)
				}
			}
		},
	}
}
