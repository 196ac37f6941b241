// Package actions is the executor's action catalogue: every operation the
// model may request against the device or the session scratchpad, with a
// JSON-schema argument contract and a typed decode at the boundary.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/roam/pkg/ports"
)

// Env carries what an action needs at run time. Pad is a snapshot of the
// session scratchpad; writes land in Result.Notes so the caller folds them
// back into the state.
type Env struct {
	Device   ports.DeviceController
	Pad      map[string]string
	Elements []map[string]any
	Width    int
	Height   int

	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (e *Env) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Result is the outcome of one action.
type Result struct {
	Content string
	Failed  bool
	Notes   map[string]string
}

func ok(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...), Failed: true}
}

// Definition is one catalogue entry.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	run         func(ctx context.Context, env *Env, args map[string]any) Result
}

// Registry holds the catalogue in a fixed order.
type Registry struct {
	defs   []Definition
	byName map[string]*Definition
	logger *slog.Logger
}

// NewRegistry builds the full catalogue.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]*Definition), logger: logger}
	for _, def := range []Definition{
		backDef(),
		openLinkDef(),
		tapDef(),
		longPressDef(),
		swipeDef(),
		inputTextDef(),
		eraseOneCharDef(),
		launchAppDef(),
		stopAppDef(),
		clearTextDef(),
		pressKeyDef(),
		waitForDelayDef(),
		saveNoteDef(),
		readNoteDef(),
		listNotesDef(),
	} {
		r.register(def)
	}
	return r
}

func (r *Registry) register(def Definition) {
	r.defs = append(r.defs, def)
	r.byName[def.Name] = &r.defs[len(r.defs)-1]
}

// Specs exposes the catalogue for tool binding.
func (r *Registry) Specs() []ports.ToolSpec {
	out := make([]ports.ToolSpec, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, ports.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return out
}

// Names lists the catalogue in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Name)
	}
	return out
}

// Execute runs a named action with raw model-supplied arguments. Unknown
// names fail the call rather than the run.
func (r *Registry) Execute(ctx context.Context, env *Env, name string, args map[string]any) Result {
	def, okName := r.byName[name]
	if !okName {
		return failed("Unknown action %q", name)
	}
	res := def.run(ctx, env, args)
	r.logger.Debug("action executed", "action", name, "failed", res.Failed)
	return res
}

// decode maps raw arguments onto a typed struct. Arguments the schema does
// not declare are rejected so a drifting model surfaces early.
func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	// The model narrates every call; the thought is read by the invoker,
	// not the action.
	clean := make(map[string]any, len(args))
	for k, v := range args {
		if k == "agent_thought" {
			continue
		}
		clean[k] = v
	}
	return dec.Decode(clean)
}

// obj builds a JSON-schema object. Every action shares the agent_thought
// property so the model explains itself per call.
func obj(required []string, props map[string]any) map[string]any {
	all := map[string]any{
		"agent_thought": map[string]any{
			"type":        "string",
			"description": "One sentence explaining why this action is taken.",
		},
	}
	for k, v := range props {
		all[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": all,
		"required":   append([]string{"agent_thought"}, required...),
	}
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
