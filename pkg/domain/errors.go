package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmptyPlan is returned when the planner produced no subgoals.
var ErrEmptyPlan = errors.New("planner produced an empty plan")

// ErrInference is the sentinel wrapped by stage errors when both the primary
// and the fallback model call failed.
var ErrInference = errors.New("inference failed on primary and fallback")
