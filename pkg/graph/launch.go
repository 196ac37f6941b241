package graph

import (
	"context"
	"fmt"

	"github.com/aretw0/roam/pkg/domain"
)

// PrepareSession performs the initial launch of the locked app, when one is
// configured, and records the outcome on the state. A failed launch does not
// abort the session; it disables in-run verification, since there is no
// known-good launch to hold the session to.
func PrepareSession(ctx context.Context, deps *Deps, s *domain.State) {
	deps.Config = deps.Config.Normalize()
	if deps.Config.LockedApp == "" {
		return
	}
	lock := &domain.AppLock{Package: deps.Config.LockedApp, InitialChecks: true}
	if err := deps.launchWithRetries(ctx, lock.Package); err != nil {
		deps.logger().Error("initial launch of locked app failed", "package", lock.Package, "err", err)
		lock.LaunchError = err.Error()
	} else {
		lock.LaunchOK = true
	}
	s.AppLock = lock
}

// pollForAppReady waits for the launched app to reach the foreground. An
// empty foreground package means the app is still loading and polling
// continues; a different package in the foreground fails the attempt early.
func (d *Deps) pollForAppReady(ctx context.Context, pkg string) error {
	clock := d.clock()
	deadline := clock.Now().Add(d.Config.LaunchWait)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current, err := d.Device.ForegroundPackage(ctx)
		if err != nil {
			return fmt.Errorf("foreground probe failed: %w", err)
		}
		switch {
		case current == pkg:
			return nil
		case current != "":
			return fmt.Errorf("wrong app in foreground: expected %q, got %q", pkg, current)
		}
		if !clock.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for %s to load after %s", pkg, d.Config.LaunchWait)
		}
		clock.Sleep(d.Config.LaunchPoll)
	}
}

// launchWithRetries launches an app and polls until it is ready, retrying a
// bounded number of times.
func (d *Deps) launchWithRetries(ctx context.Context, pkg string) error {
	var lastErr error
	for attempt := 1; attempt <= d.Config.LaunchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Device.LaunchApp(ctx, pkg); err != nil {
			lastErr = err
			d.logger().Warn("app launch failed", "package", pkg, "attempt", attempt, "err", err)
			continue
		}
		if err := d.pollForAppReady(ctx, pkg); err != nil {
			lastErr = err
			d.logger().Warn("app not ready after launch", "package", pkg, "attempt", attempt, "err", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("launching %s failed after %d attempts: %w", pkg, d.Config.LaunchAttempts, lastErr)
}
