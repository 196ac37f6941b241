package domain

// Snapshot is the device state captured by the context collector for one
// cycle. It is single-use: the decision stage consumes it and clears it so
// stale UI data never leaks into the next cycle.
type Snapshot struct {
	UIElements    []map[string]any `json:"ui_elements,omitempty"`
	ScreenshotB64 string           `json:"screenshot_b64,omitempty"`
	FocusedApp    string           `json:"focused_app,omitempty"`
	Width         int              `json:"width,omitempty"`
	Height        int              `json:"height,omitempty"`
	DeviceDate    string           `json:"device_date,omitempty"`
}

// AppLock tracks the locked-app invariant for a session. Verification in the
// context collector only runs when the initial launch succeeded.
type AppLock struct {
	Package       string `json:"package"`
	LaunchOK      bool   `json:"launch_ok"`
	LaunchError   string `json:"launch_error,omitempty"`
	InitialChecks bool   `json:"initial_checks"` // initial launch was attempted
}

// State is the orchestration state threaded through the agent graph. The
// graph runner is its only owner: stages receive it for the duration of one
// invocation and return a partial Update which the runner merges.
type State struct {
	SessionID string `json:"session_id"`
	Goal      string `json:"goal"`

	Plan     Plan      `json:"plan"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Decision is the opaque structured payload produced by the decision
	// stage for the executor. Empty means no decision this cycle.
	Decision string `json:"decision,omitempty"`

	// CompleteIDs are the subgoal ids the decision stage reported complete
	// this cycle; the orchestrator clears them after review.
	CompleteIDs []string `json:"complete_ids,omitempty"`

	// Thoughts is the append-only log of stage reasoning, each entry tagged
	// with the producing stage as "[stage] text".
	Thoughts []string `json:"thoughts,omitempty"`

	// History is the long-lived action transcript; it is append-only except
	// for compaction, which removes a prefix.
	History []Message `json:"history,omitempty"`

	// ExecMessages is the per-cycle tool-call working context of the
	// executor; the decision stage clears it before every executor pass.
	ExecMessages []Message `json:"exec_messages,omitempty"`

	// LastRationale is the decision stage's most recent combined reasoning,
	// handed to the executor as context.
	LastRationale string `json:"last_rationale,omitempty"`

	// Scratchpad is the persistent key-value memory the executor's note
	// tools read and write.
	Scratchpad map[string]string `json:"scratchpad,omitempty"`

	AppLock *AppLock `json:"app_lock,omitempty"`

	// Cycle counts completed passes through the convergence gate.
	Cycle int `json:"cycle"`

	// Done is set when the convergence gate routes to the terminal.
	Done bool `json:"done"`
}

// NewState creates the initial orchestration state for a goal.
func NewState(sessionID, goal string) *State {
	return &State{
		SessionID:  sessionID,
		Goal:       goal,
		Scratchpad: make(map[string]string),
	}
}

// RecentThoughts returns at most n of the latest thoughts, oldest first.
func (s *State) RecentThoughts(n int) []string {
	if n <= 0 || len(s.Thoughts) <= n {
		return s.Thoughts
	}
	return s.Thoughts[len(s.Thoughts)-n:]
}

// Clone returns a deep-enough copy for persistence: slices and maps are
// copied so the stored value is isolated from further mutation.
func (s *State) Clone() *State {
	out := *s
	out.Plan = s.Plan.Clone()
	out.CompleteIDs = append([]string(nil), s.CompleteIDs...)
	out.Thoughts = append([]string(nil), s.Thoughts...)
	out.History = append([]Message(nil), s.History...)
	out.ExecMessages = append([]Message(nil), s.ExecMessages...)
	if s.Snapshot != nil {
		snap := *s.Snapshot
		out.Snapshot = &snap
	}
	if s.AppLock != nil {
		lock := *s.AppLock
		out.AppLock = &lock
	}
	out.Scratchpad = make(map[string]string, len(s.Scratchpad))
	for k, v := range s.Scratchpad {
		out.Scratchpad[k] = v
	}
	return &out
}
