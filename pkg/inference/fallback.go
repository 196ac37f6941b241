// Package inference wraps model calls with the primary/fallback policy the
// agent stages share: try the configured model, fall back to the secondary on
// an error or an empty result, and surface a notice when a call is slow.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/roam/pkg/domain"
)

// DefaultNoticeAfter is how long a call may run before the slow notice fires.
const DefaultNoticeAfter = 10 * time.Second

// Options tunes a fallback call.
type Options struct {
	// Stage names the caller in logs and fallback events.
	Stage string
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
	// NoticeAfter is the slow-call threshold; zero means DefaultNoticeAfter.
	NoticeAfter time.Duration
	// OnNotice runs once if the call is still in flight after NoticeAfter.
	// The call itself is never cancelled.
	OnNotice func(stage string, elapsed time.Duration)
	// OnFallback runs when the primary fails and the fallback is attempted.
	OnFallback func(stage string, cause error)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) noticeAfter() time.Duration {
	if o.NoticeAfter > 0 {
		return o.NoticeAfter
	}
	return DefaultNoticeAfter
}

// Call runs primary and, on an error or a nil result, retries once with
// fallback. Both failing is terminal: the returned error wraps
// domain.ErrInference and the run is expected to stop.
func Call[T any](ctx context.Context, opts Options, primary, fallback func(context.Context) (T, error)) (T, error) {
	out, perr := attempt(ctx, opts, primary)
	if perr == nil {
		return out, nil
	}

	opts.logger().Warn("primary model failed, trying fallback", "stage", opts.Stage, "err", perr)
	if opts.OnFallback != nil {
		opts.OnFallback(opts.Stage, perr)
	}

	out, ferr := attempt(ctx, opts, fallback)
	if ferr == nil {
		return out, nil
	}

	var zero T
	return zero, fmt.Errorf("%w: stage %s: primary: %v; fallback: %v", domain.ErrInference, opts.Stage, perr, ferr)
}

// attempt runs one call with the slow notice attached and normalizes a nil
// result into an error so the fallback policy treats both the same way.
func attempt[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	timer := time.AfterFunc(opts.noticeAfter(), func() {
		opts.logger().Info("model call is taking a while", "stage", opts.Stage, "elapsed", time.Since(started))
		if opts.OnNotice != nil {
			opts.OnNotice(opts.Stage, time.Since(started))
		}
	})
	defer timer.Stop()

	out, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if isNil(out) {
		var zero T
		return zero, fmt.Errorf("stage %s: model returned no result", opts.Stage)
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
