package domain

import (
	"strings"
	"time"
)

// Plan is the ordered list of subgoals for the current goal. It is replaced
// wholesale by the planner and mutated in place by the orchestrator; no other
// stage writes subgoal status.
//
// Invariant: at most one subgoal is PENDING at any time.
type Plan []Subgoal

// Current returns the current subgoal (the first PENDING one), or nil.
func (p Plan) Current() *Subgoal {
	for i := range p {
		if p[i].Status == SubgoalPending {
			return &p[i]
		}
	}
	return nil
}

// Next returns the first NOT_STARTED subgoal, or nil.
func (p Plan) Next() *Subgoal {
	for i := range p {
		if p[i].Status == SubgoalNotStarted {
			return &p[i]
		}
	}
	return nil
}

// StartNext transitions the first NOT_STARTED subgoal to PENDING and stamps
// its start time. It is a no-op when a subgoal is already PENDING: callers
// are expected to check Current first, but the single-PENDING invariant is
// guarded here regardless.
func (p Plan) StartNext() *Subgoal {
	if p.Current() != nil {
		return nil
	}
	next := p.Next()
	if next == nil {
		return nil
	}
	now := time.Now().UTC()
	next.Status = SubgoalPending
	next.StartedAt = &now
	return next
}

// CompleteByIDs transitions the subgoals with the given ids to SUCCESS and
// stamps their end time. Unknown ids are ignored.
func (p Plan) CompleteByIDs(ids []string, reason string) {
	now := time.Now().UTC()
	for i := range p {
		for _, id := range ids {
			if p[i].ID == id {
				p[i].Status = SubgoalSuccess
				p[i].CompletionReason = reason
				p[i].EndedAt = &now
			}
		}
	}
}

// FailCurrent transitions the current PENDING subgoal to FAILURE and stamps
// its end time. Returns the failed subgoal, or nil if nothing was pending.
func (p Plan) FailCurrent(reason string) *Subgoal {
	cur := p.Current()
	if cur == nil {
		return nil
	}
	now := time.Now().UTC()
	cur.Status = SubgoalFailure
	cur.CompletionReason = reason
	cur.EndedAt = &now
	return cur
}

// ByIDs returns the subgoals matching the given ids, in plan order.
func (p Plan) ByIDs(ids []string) []Subgoal {
	var out []Subgoal
	for _, s := range p {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out
}

// AllSucceeded reports whether every subgoal reached SUCCESS.
func (p Plan) AllSucceeded() bool {
	for _, s := range p {
		if s.Status != SubgoalSuccess {
			return false
		}
	}
	return len(p) > 0
}

// AnyFailed reports whether any subgoal is in FAILURE.
func (p Plan) AnyFailed() bool {
	for _, s := range p {
		if s.Status == SubgoalFailure {
			return true
		}
	}
	return false
}

// NothingStarted reports whether every subgoal is still NOT_STARTED.
func (p Plan) NothingStarted() bool {
	for _, s := range p {
		if s.Status != SubgoalNotStarted {
			return false
		}
	}
	return true
}

// Clone returns a copy the caller can mutate without touching the original.
func (p Plan) Clone() Plan {
	out := make(Plan, len(p))
	copy(out, p)
	return out
}

// String renders the plan one subgoal per line.
func (p Plan) String() string {
	lines := make([]string, len(p))
	for i, s := range p {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}
