// Package bridge implements the device controller port against the HTTP API
// of a device hardware bridge (the sidecar that owns the adb/simulator
// connection).
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aretw0/roam/pkg/ports"
)

// Client talks to one device bridge.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// New creates a client for the bridge at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type screenResponse struct {
	Elements   []map[string]any `json:"elements"`
	Screenshot string           `json:"screenshot"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
}

type foregroundResponse struct {
	Package string `json:"package"`
}

type dateResponse struct {
	Date string `json:"date"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return fmt.Errorf("bridge GET %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge GET %s: %s", path, resp.Status())
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("bridge POST %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge POST %s: %s: %s", path, resp.Status(), resp.String())
	}
	return nil
}

// ScreenData captures the UI hierarchy and a screenshot.
func (c *Client) ScreenData(ctx context.Context) (*ports.ScreenData, error) {
	var out screenResponse
	if err := c.get(ctx, "/screen", &out); err != nil {
		return nil, err
	}
	return &ports.ScreenData{
		Elements:      out.Elements,
		ScreenshotB64: out.Screenshot,
		Width:         out.Width,
		Height:        out.Height,
	}, nil
}

// ForegroundPackage returns the focused app package; "" means the bridge has
// no focus information yet.
func (c *Client) ForegroundPackage(ctx context.Context) (string, error) {
	var out foregroundResponse
	if err := c.get(ctx, "/foreground", &out); err != nil {
		return "", err
	}
	return out.Package, nil
}

// DeviceDate returns the device's local date string.
func (c *Client) DeviceDate(ctx context.Context) (string, error) {
	var out dateResponse
	if err := c.get(ctx, "/date", &out); err != nil {
		return "", err
	}
	return out.Date, nil
}

func (c *Client) LaunchApp(ctx context.Context, pkg string) error {
	return c.post(ctx, "/apps/launch", map[string]string{"package": pkg})
}

func (c *Client) StopApp(ctx context.Context, pkg string) error {
	return c.post(ctx, "/apps/stop", map[string]string{"package": pkg})
}

func (c *Client) Tap(ctx context.Context, x, y int) error {
	return c.post(ctx, "/gestures/tap", map[string]int{"x": x, "y": y})
}

func (c *Client) LongPress(ctx context.Context, x, y int) error {
	return c.post(ctx, "/gestures/long-press", map[string]int{"x": x, "y": y})
}

func (c *Client) Swipe(ctx context.Context, startX, startY, endX, endY, durationMS int) error {
	return c.post(ctx, "/gestures/swipe", map[string]int{
		"start_x": startX, "start_y": startY,
		"end_x": endX, "end_y": endY,
		"duration_ms": durationMS,
	})
}

func (c *Client) InputText(ctx context.Context, text string) error {
	return c.post(ctx, "/input/text", map[string]string{"text": text})
}

func (c *Client) EraseChars(ctx context.Context, n int) error {
	return c.post(ctx, "/input/erase", map[string]int{"count": n})
}

func (c *Client) ClearText(ctx context.Context) error {
	return c.post(ctx, "/input/clear", nil)
}

func (c *Client) PressKey(ctx context.Context, key string) error {
	return c.post(ctx, "/input/key", map[string]string{"key": key})
}

func (c *Client) Back(ctx context.Context) error {
	return c.post(ctx, "/navigation/back", nil)
}

func (c *Client) OpenLink(ctx context.Context, url string) error {
	return c.post(ctx, "/navigation/link", map[string]string{"url": url})
}
