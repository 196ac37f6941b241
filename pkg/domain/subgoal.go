package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// SubgoalStatus is the lifecycle state of a single subgoal.
type SubgoalStatus string

const (
	SubgoalNotStarted SubgoalStatus = "NOT_STARTED"
	SubgoalPending    SubgoalStatus = "PENDING"
	SubgoalSuccess    SubgoalStatus = "SUCCESS"
	SubgoalFailure    SubgoalStatus = "FAILURE"
)

// Subgoal is one step of a decomposed goal. Identity (ID, Description) is
// immutable once created; only status, timestamps and the completion reason
// may change, and only the planner and orchestrator stages change them.
type Subgoal struct {
	ID               string        `json:"id"`
	Description      string        `json:"description"`
	Status           SubgoalStatus `json:"status"`
	CompletionReason string        `json:"completion_reason,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
}

// String renders the subgoal the way it is shown to models and users.
func (s Subgoal) String() string {
	out := fmt.Sprintf("- [ID:%s]: %s : %s", s.ID, s.Description, s.Status)
	if s.CompletionReason != "" {
		out += " (" + s.CompletionReason + ")"
	}
	return out
}

const subgoalIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewSubgoalID generates a short random identifier for a subgoal.
// Short ids keep model prompts compact while staying distinct within a plan.
func NewSubgoalID() string {
	var b strings.Builder
	for range 6 {
		b.WriteByte(subgoalIDAlphabet[rand.IntN(len(subgoalIDAlphabet))])
	}
	return b.String()
}

// NewSubgoal creates a NOT_STARTED subgoal with a fresh id.
func NewSubgoal(description string) Subgoal {
	return Subgoal{
		ID:          NewSubgoalID(),
		Description: description,
		Status:      SubgoalNotStarted,
	}
}
