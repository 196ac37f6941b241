package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/roam/pkg/domain"
)

const appLockSystemPrompt = `A mobile-device agent is pinned to one
application but a different one is in the foreground. Decide whether the
pinned app should be relaunched or whether the deviation serves the goal
(a share sheet, a login redirect, a file picker).

Respond with a JSON object: {"should_relaunch_app": true, "reasoning": "..."}.`

type appLockOutput struct {
	ShouldRelaunch bool   `json:"should_relaunch_app"`
	Reasoning      string `json:"reasoning"`
}

// collector captures the per-cycle device snapshot and enforces the
// locked-app invariant when one is configured.
type collector struct {
	deps *Deps
}

func (c *collector) run(ctx context.Context, s *domain.State) (*domain.Update, error) {
	screen, err := c.deps.Device.ScreenData(ctx)
	if err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	focused, err := c.deps.Device.ForegroundPackage(ctx)
	if err != nil {
		return nil, fmt.Errorf("foreground probe failed: %w", err)
	}
	date, err := c.deps.Device.DeviceDate(ctx)
	if err != nil {
		c.deps.logger().Warn("device date unavailable", "err", err)
	}

	u := &domain.Update{
		Snapshot: &domain.Snapshot{
			UIElements:    screen.Elements,
			ScreenshotB64: screen.ScreenshotB64,
			FocusedApp:    focused,
			Width:         screen.Width,
			Height:        screen.Height,
			DeviceDate:    date,
		},
	}

	if s.AppLock != nil && s.AppLock.Package != "" {
		if thought := c.verifyAppLock(ctx, s, focused); thought != "" {
			u.Thoughts = append(u.Thoughts, domain.Thought{Stage: StageCollector, Text: thought})
		}
	}

	return u, nil
}

// verifyAppLock checks the locked-app invariant for one cycle and returns a
// thought describing any corrective action. It returns "" when the locked
// app is already in the foreground: an unremarkable cycle leaves no trace.
func (c *collector) verifyAppLock(ctx context.Context, s *domain.State, focused string) string {
	lock := s.AppLock

	if !lock.LaunchOK {
		c.deps.logger().Warn("app lock configured but initial launch did not succeed, skipping verification",
			"package", lock.Package)
		return ""
	}
	if focused == "" {
		// No foreground info yet; an app is still loading.
		c.deps.logger().Warn("app lock configured but foreground app is unknown, skipping verification",
			"package", lock.Package)
		return ""
	}
	if focused == lock.Package {
		return ""
	}

	c.deps.logger().Warn("app lock violation detected", "expected", lock.Package, "focused", focused)

	decision, err := c.relaunchDecision(ctx, s, focused)
	if err != nil {
		c.deps.logger().Error("app lock verification failed", "err", err)
		return ""
	}

	if !decision.ShouldRelaunch {
		return fmt.Sprintf("Allowed temporary deviation from %s to %s: %s",
			lock.Package, focused, decision.Reasoning)
	}

	if err := c.deps.launchWithRetries(ctx, lock.Package); err != nil {
		c.deps.logger().Error("failed to relaunch locked app", "package", lock.Package, "err", err)
		return fmt.Sprintf("Failed to relaunch locked app %s: %v", lock.Package, err)
	}
	return fmt.Sprintf("Relaunched locked app %s: %s", lock.Package, decision.Reasoning)
}

// relaunchDecision asks the model whether the deviation is intentional. It
// sees a bounded window of recent thoughts.
func (c *collector) relaunchDecision(ctx context.Context, s *domain.State, focused string) (*appLockOutput, error) {
	prompt := fmt.Sprintf("Goal: %s\n\nPlan:\n%s\n\nLocked app: %s\nCurrent foreground app: %s\n\nRecent reasoning:\n%s",
		s.Goal, s.Plan.String(), s.AppLock.Package, focused,
		strings.Join(s.RecentThoughts(c.deps.Config.AppLockThoughts), "\n"))

	msgs := []domain.Message{
		domain.SystemMessage(appLockSystemPrompt),
		domain.UserMessage(prompt),
	}
	var out appLockOutput
	if err := c.deps.structured(ctx, StageCollector, msgs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
