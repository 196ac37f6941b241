package actions

import (
	"context"
	"strings"
	"time"
)

const maxDelayMS = 60000

func backDef() Definition {
	return Definition{
		Name:        "back",
		Description: "Navigate to the previous screen.",
		Parameters:  obj(nil, nil),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			if err := env.Device.Back(ctx); err != nil {
				return failed("Failed to navigate to the previous screen: %v", err)
			}
			return ok("Navigated to the previous screen.")
		},
	}
}

func openLinkDef() Definition {
	type params struct {
		URL string `json:"url"`
	}
	return Definition{
		Name:        "open_link",
		Description: "Open a URL or deep link on the device.",
		Parameters:  obj([]string{"url"}, map[string]any{"url": strProp("The URL or deep link to open.")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to open link: %v", err)
			}
			if err := env.Device.OpenLink(ctx, p.URL); err != nil {
				return failed("Failed to open link: %v", err)
			}
			return ok("Link %s opened successfully.", p.URL)
		},
	}
}

func tapDef() Definition {
	type params struct {
		Target Target `json:"target"`
	}
	return Definition{
		Name: "tap",
		Description: "Tap on a UI element identified by the target locator. " +
			"Locators are tried in order: bounds, resource_id, text.",
		Parameters: obj([]string{"target"}, map[string]any{"target": targetProp()}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to tap on element: %v", err)
			}
			x, y, err := resolvePoint(env, p.Target)
			if err != nil {
				return failed("Failed to tap on element. Attempts: %v", err)
			}
			if err := env.Device.Tap(ctx, x, y); err != nil {
				return failed("Failed to tap on element at (%d, %d): %v", x, y, err)
			}
			return ok("Tap on element at (%d, %d) was successful.", x, y)
		},
	}
}

func longPressDef() Definition {
	type params struct {
		Target Target `json:"target"`
	}
	return Definition{
		Name:        "long_press_on",
		Description: "Long press on a UI element identified by the target locator.",
		Parameters:  obj([]string{"target"}, map[string]any{"target": targetProp()}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to long press on element: %v", err)
			}
			x, y, err := resolvePoint(env, p.Target)
			if err != nil {
				return failed("Failed to long press on element. Attempts: %v", err)
			}
			if err := env.Device.LongPress(ctx, x, y); err != nil {
				return failed("Failed to long press on element at (%d, %d): %v", x, y, err)
			}
			return ok("Long press on element at (%d, %d) was successful.", x, y)
		},
	}
}

func swipeDef() Definition {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	type params struct {
		Start      point `json:"start"`
		End        point `json:"end"`
		DurationMS int   `json:"duration_ms"`
	}
	pointProp := func(desc string) map[string]any {
		return map[string]any{
			"type":        "object",
			"description": desc,
			"properties": map[string]any{
				"x": intProp("Horizontal position in pixels."),
				"y": intProp("Vertical position in pixels."),
			},
			"required": []string{"x", "y"},
		}
	}
	return Definition{
		Name:        "swipe",
		Description: "Swipe from a start to an end position on screen.",
		Parameters: obj([]string{"start", "end"}, map[string]any{
			"start":       pointProp("Where the swipe starts."),
			"end":         pointProp("Where the swipe ends."),
			"duration_ms": intProp("Swipe duration in milliseconds; defaults to 400."),
		}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to swipe: %v", err)
			}
			if p.DurationMS <= 0 {
				p.DurationMS = 400
			}
			if err := env.Device.Swipe(ctx, p.Start.X, p.Start.Y, p.End.X, p.End.Y, p.DurationMS); err != nil {
				return failed("Failed to swipe: %v", err)
			}
			return ok("Swipe is successful.")
		},
	}
}

func inputTextDef() Definition {
	type params struct {
		Target *Target `json:"target,omitempty"`
		Text   string  `json:"text"`
	}
	return Definition{
		Name: "input_text",
		Description: "Type text into an input field. When a target locator is " +
			"given the field is focused with a tap first.",
		Parameters: obj([]string{"text"}, map[string]any{
			"text":   strProp("The text to type."),
			"target": targetProp(),
		}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to input text: %v", err)
			}
			if p.Target != nil && p.Target.HasSelector() {
				x, y, err := resolvePoint(env, *p.Target)
				if err != nil {
					return failed("Failed to input text %q: could not focus field: %v", p.Text, err)
				}
				if err := env.Device.Tap(ctx, x, y); err != nil {
					return failed("Failed to input text %q: focus tap failed: %v", p.Text, err)
				}
			}
			if err := env.Device.InputText(ctx, p.Text); err != nil {
				return failed("Failed to input text %q. Reason: %v", p.Text, err)
			}
			return ok("Text %q input successfully.", p.Text)
		},
	}
}

func eraseOneCharDef() Definition {
	return Definition{
		Name:        "erase_one_char",
		Description: "Erase one character from the focused input field.",
		Parameters:  obj(nil, nil),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			if err := env.Device.EraseChars(ctx, 1); err != nil {
				return failed("Failed to erase one character.")
			}
			return ok("Erased one character successfully.")
		},
	}
}

func clearTextDef() Definition {
	type params struct {
		Target *Target `json:"target,omitempty"`
	}
	return Definition{
		Name: "clear_text",
		Description: "Clear the content of an input field. When a target " +
			"locator is given the field is focused with a tap first.",
		Parameters: obj(nil, map[string]any{"target": targetProp()}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to clear text: %v", err)
			}
			if p.Target != nil && p.Target.HasSelector() {
				x, y, err := resolvePoint(env, *p.Target)
				if err != nil {
					return failed("Failed to clear text: could not focus field: %v", err)
				}
				if err := env.Device.Tap(ctx, x, y); err != nil {
					return failed("Failed to clear text: focus tap failed: %v", err)
				}
			}
			if err := env.Device.ClearText(ctx); err != nil {
				return failed("Failed to clear text: %v", err)
			}
			return ok("Text cleared successfully.")
		},
	}
}

func launchAppDef() Definition {
	type params struct {
		Package string `json:"package_name"`
	}
	return Definition{
		Name:        "launch_app",
		Description: "Launch an app by its package name.",
		Parameters:  obj([]string{"package_name"}, map[string]any{"package_name": strProp("The package name of the app to launch.")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to launch app: %v", err)
			}
			if err := env.Device.LaunchApp(ctx, p.Package); err != nil {
				return failed("Failed to launch app '%s': %v", p.Package, err)
			}
			return ok("App '%s' launched successfully.", p.Package)
		},
	}
}

func stopAppDef() Definition {
	type params struct {
		Package string `json:"package_name"`
	}
	return Definition{
		Name:        "stop_app",
		Description: "Stop an app by its package name.",
		Parameters:  obj([]string{"package_name"}, map[string]any{"package_name": strProp("The package name of the app to stop.")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to stop app: %v", err)
			}
			if err := env.Device.StopApp(ctx, p.Package); err != nil {
				return failed("Failed to stop app %s.", p.Package)
			}
			return ok("App %s stopped successfully.", p.Package)
		},
	}
}

func pressKeyDef() Definition {
	type params struct {
		Key string `json:"key"`
	}
	return Definition{
		Name:        "press_key",
		Description: "Press a device key. Supported keys: Enter, Home, Back.",
		Parameters:  obj([]string{"key"}, map[string]any{"key": strProp("The key to press: Enter, Home or Back (case insensitive).")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to press key: %v", err)
			}
			key := normalizeKey(p.Key)
			switch key {
			case "Enter", "Home", "Back":
			default:
				return failed("Unsupported key %q; supported keys are Enter, Home and Back.", p.Key)
			}
			if err := env.Device.PressKey(ctx, key); err != nil {
				return failed("Failed to press key %s.", key)
			}
			return ok("Key %s pressed successfully.", key)
		},
	}
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return ""
	}
	return strings.ToUpper(k[:1]) + k[1:]
}

func waitForDelayDef() Definition {
	type params struct {
		TimeInMS int `json:"time_in_ms"`
	}
	return Definition{
		Name: "wait_for_delay",
		Description: "Pause for a number of milliseconds, capped at 60 seconds. " +
			"Use it to let the UI settle after an action.",
		Parameters: obj([]string{"time_in_ms"}, map[string]any{"time_in_ms": intProp("Milliseconds to wait, capped at 60000.")}),
		run: func(ctx context.Context, env *Env, args map[string]any) Result {
			var p params
			if err := decode(args, &p); err != nil {
				return failed("Failed to wait for delay: %v", err)
			}
			if p.TimeInMS < 0 {
				p.TimeInMS = 1000
			}
			if p.TimeInMS > maxDelayMS {
				p.TimeInMS = maxDelayMS
			}
			env.sleep(time.Duration(p.TimeInMS) * time.Millisecond)
			return ok("Successfully waited for %d milliseconds.", p.TimeInMS)
		},
	}
}
