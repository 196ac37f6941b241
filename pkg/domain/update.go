package domain

// Thought is one untagged reasoning entry produced by a stage. The runner
// tags it with the stage name when merging.
type Thought struct {
	Stage string
	Text  string
}

// Update is the partial state change a stage returns. The graph runner is
// the only writer of State; it applies updates in a fixed order after each
// superstep, which is what makes the decision fan-out safe without locks.
type Update struct {
	// ReplacePlan swaps the whole plan. Replan marks the swap as a
	// failure-driven replan (planner only); orchestrator mutations pass
	// Replan=false.
	ReplacePlan Plan
	Replan      bool

	Snapshot      *Snapshot
	ClearSnapshot bool

	// SetDecision sets the structured decision payload; an empty string
	// clears it.
	SetDecision *string

	// SetCompleteIDs replaces the ids-reported-complete list; an empty
	// slice clears it.
	SetCompleteIDs *[]string

	SetRationale *string

	Thoughts []Thought

	AppendHistory []Message

	// TrimHistory removes that many messages from the front of History
	// (compactor only).
	TrimHistory int

	AppendExec []Message
	ClearExec  bool

	// Scratchpad replaces the scratchpad contents (tool runner only).
	Scratchpad map[string]string

	SetAppLock *AppLock

	// BumpCycle increments the cycle counter (convergence only).
	BumpCycle bool

	Done bool
}

// Apply merges the update into the state. Hook dispatch (plan change,
// thought sinks) is the runner's job; Apply is pure state mutation.
func (s *State) Apply(u *Update) {
	if u == nil {
		return
	}
	if u.ReplacePlan != nil {
		s.Plan = u.ReplacePlan
	}
	if u.Snapshot != nil {
		s.Snapshot = u.Snapshot
	}
	if u.ClearSnapshot {
		s.Snapshot = nil
	}
	if u.SetDecision != nil {
		s.Decision = *u.SetDecision
	}
	if u.SetCompleteIDs != nil {
		s.CompleteIDs = *u.SetCompleteIDs
	}
	if u.SetRationale != nil {
		s.LastRationale = *u.SetRationale
	}
	for _, t := range u.Thoughts {
		if t.Text == "" {
			continue
		}
		s.Thoughts = append(s.Thoughts, "["+t.Stage+"] "+t.Text)
	}
	if u.TrimHistory > 0 && u.TrimHistory <= len(s.History) {
		s.History = append([]Message(nil), s.History[u.TrimHistory:]...)
	}
	s.History = append(s.History, u.AppendHistory...)
	if u.ClearExec {
		s.ExecMessages = nil
	}
	s.ExecMessages = append(s.ExecMessages, u.AppendExec...)
	if u.Scratchpad != nil {
		s.Scratchpad = u.Scratchpad
	}
	if u.SetAppLock != nil {
		s.AppLock = u.SetAppLock
	}
	if u.BumpCycle {
		s.Cycle++
	}
	if u.Done {
		s.Done = true
	}
}
