package actions

import (
	"fmt"
	"strings"
)

// Bounds is an element rectangle in screen pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Target locates a UI element. Selectors are tried in order: bounds, then
// resource id, then text. Index selects among elements sharing the same
// resource id or text; unset means the first match.
type Target struct {
	ResourceID      string  `json:"resource_id,omitempty"`
	ResourceIDIndex *int    `json:"resource_id_index,omitempty"`
	Text            string  `json:"text,omitempty"`
	TextIndex       *int    `json:"text_index,omitempty"`
	Bounds          *Bounds `json:"bounds,omitempty"`
}

// HasSelector reports whether any locator is set.
func (t Target) HasSelector() bool {
	return t.Bounds != nil || t.ResourceID != "" || t.Text != ""
}

func targetProp() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "Locator for a UI element. Provide bounds, a resource_id, or visible text; locators are tried in that order.",
		"properties": map[string]any{
			"resource_id":       strProp("The resource-id of the element."),
			"resource_id_index": intProp("Zero-based index when several elements share the resource-id."),
			"text":              strProp("The visible text of the element."),
			"text_index":        intProp("Zero-based index when several elements share the text."),
			"bounds": map[string]any{
				"type":        "object",
				"description": "The x, y, width and height of the element.",
				"properties": map[string]any{
					"x":      intProp("Left edge in pixels."),
					"y":      intProp("Top edge in pixels."),
					"width":  intProp("Width in pixels."),
					"height": intProp("Height in pixels."),
				},
				"required": []string{"x", "y", "width", "height"},
			},
		},
	}
}

// resolvePoint turns a target into tap coordinates using the current UI
// hierarchy. It records every failed selector so the model sees what was
// tried.
func resolvePoint(env *Env, t Target) (x, y int, err error) {
	if !t.HasSelector() {
		return 0, 0, fmt.Errorf("no valid selector provided (need bounds, resource_id, or text)")
	}

	var attempts []string

	if t.Bounds != nil {
		cx, cy := t.Bounds.Center()
		if inScreen(env, cx, cy) {
			return cx, cy, nil
		}
		attempts = append(attempts, fmt.Sprintf("coordinates (%d, %d): out of %dx%d screen", cx, cy, env.Width, env.Height))
	}

	if t.ResourceID != "" {
		if b, found := findElement(env.Elements, "resourceId", t.ResourceID, idx(t.ResourceIDIndex)); found {
			cx, cy := b.Center()
			return cx, cy, nil
		}
		attempts = append(attempts, fmt.Sprintf("resource-id %q: no element", t.ResourceID))
	}

	if t.Text != "" {
		if b, found := findElement(env.Elements, "text", t.Text, idx(t.TextIndex)); found {
			cx, cy := b.Center()
			return cx, cy, nil
		}
		attempts = append(attempts, fmt.Sprintf("text %q: no element", t.Text))
	}

	return 0, 0, fmt.Errorf("no selector matched: %s", strings.Join(attempts, "; "))
}

func idx(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func inScreen(env *Env, x, y int) bool {
	if env.Width == 0 || env.Height == 0 {
		// Screen size unknown; trust the model's coordinates.
		return x >= 0 && y >= 0
	}
	return x >= 0 && y >= 0 && x < env.Width && y < env.Height
}

// findElement walks the flattened hierarchy looking for the nth element
// whose attribute matches, and extracts its bounds.
func findElement(elements []map[string]any, attr, want string, n int) (Bounds, bool) {
	seen := 0
	for _, el := range elements {
		attrs, _ := el["attributes"].(map[string]any)
		if attrs == nil {
			attrs = el
		}
		got, _ := attrs[attr].(string)
		if got != want {
			continue
		}
		if seen != n {
			seen++
			continue
		}
		return elementBounds(attrs)
	}
	return Bounds{}, false
}

func elementBounds(attrs map[string]any) (Bounds, bool) {
	raw, ok := attrs["bounds"].(map[string]any)
	if !ok {
		return Bounds{}, false
	}
	return Bounds{
		X:      asInt(raw["x"]),
		Y:      asInt(raw["y"]),
		Width:  asInt(raw["width"]),
		Height: asInt(raw["height"]),
	}, true
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
