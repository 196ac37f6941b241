package ports

import (
	"context"

	"github.com/aretw0/roam/pkg/domain"
)

// ToolSpec describes one action the model may call: the name, a short
// description, and a JSON-schema object for the arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Inference is the model-call collaborator. Each stage owns a model binding
// (selected by stage name); fallback selects the stage's secondary model,
// which must expose an identical signature.
type Inference interface {
	// Structured invokes the stage's model and decodes a JSON object
	// response into out. A nil or empty response is an error.
	Structured(ctx context.Context, stage string, fallback bool, msgs []domain.Message, out any) error

	// ToolCalls invokes the stage's model with the action catalogue bound.
	// The returned assistant message may carry zero or more tool calls.
	ToolCalls(ctx context.Context, stage string, fallback bool, msgs []domain.Message, tools []ToolSpec) (*domain.Message, error)
}
