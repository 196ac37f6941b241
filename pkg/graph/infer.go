package graph

import (
	"context"

	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/inference"
	"github.com/aretw0/roam/pkg/ports"
)

// structured runs a stage's structured-output call under the shared
// primary/fallback policy and decodes the JSON response into out.
func (d *Deps) structured(ctx context.Context, stage string, msgs []domain.Message, out any) error {
	_, err := inference.Call(ctx, d.callOptions(stage),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.Inference.Structured(ctx, stage, false, msgs, out)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.Inference.Structured(ctx, stage, true, msgs, out)
		},
	)
	return err
}

// toolCalls runs a stage's tool-binding call under the same policy. A nil
// message from the model counts as a failure and triggers the fallback.
func (d *Deps) toolCalls(ctx context.Context, stage string, msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error) {
	return inference.Call(ctx, d.callOptions(stage),
		func(ctx context.Context) (*domain.Message, error) {
			return d.Inference.ToolCalls(ctx, stage, false, msgs, tools)
		},
		func(ctx context.Context) (*domain.Message, error) {
			return d.Inference.ToolCalls(ctx, stage, true, msgs, tools)
		},
	)
}

func (d *Deps) callOptions(stage string) inference.Options {
	return inference.Options{
		Stage:  stage,
		Logger: d.logger(),
		OnFallback: func(stage string, cause error) {
			if d.Hooks.OnFallback != nil {
				d.Hooks.OnFallback(context.Background(), stage)
			}
		},
	}
}
