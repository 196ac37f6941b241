package actions

import (
	"context"
	"sort"
	"strings"
)

// Scratchpad tools give the model a small persistent key-value memory that
// survives history compaction.

func saveNoteDef() Definition {
	type params struct {
		Key     string `json:"key"`
		Content string `json:"content"`
	}
	return Definition{
		Name: "save_note",
		Description: "Save a text note to persistent memory under a key. " +
			"An existing key is overwritten.",
		Parameters: obj([]string{"key", "content"}, map[string]any{
			"key":     strProp("The key to store the note under."),
			"content": strProp("The note content."),
		}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to save note: %v", err)
			}
			if p.Key == "" {
				return failed("Failed to save note: key must not be empty.")
			}
			res := ok("Successfully saved note '%s'.", p.Key)
			res.Notes = map[string]string{p.Key: p.Content}
			return res
		},
	}
}

func readNoteDef() Definition {
	type params struct {
		Key string `json:"key"`
	}
	return Definition{
		Name:        "read_note",
		Description: "Read a previously saved note from persistent memory by its key.",
		Parameters:  obj([]string{"key"}, map[string]any{"key": strProp("The key of the note to read.")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to read note: %v", err)
			}
			content, found := env.Pad[p.Key]
			if !found {
				return failed("Note '%s' not found in scratchpad.", p.Key)
			}
			return ok("Note '%s': %s", p.Key, content)
		},
	}
}

func listNotesDef() Definition {
	return Definition{
		Name:        "list_notes",
		Description: "List the keys of every note saved in persistent memory.",
		Parameters:  obj(nil, nil),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			if len(env.Pad) == 0 {
				return ok("The scratchpad is empty.")
			}
			keys := make([]string, 0, len(env.Pad))
			for k := range env.Pad {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return ok("Saved notes: %s", strings.Join(keys, ", "))
		},
	}
}
