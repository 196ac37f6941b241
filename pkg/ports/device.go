package ports

import "context"

// ScreenData is one capture of the device screen.
type ScreenData struct {
	Elements      []map[string]any
	ScreenshotB64 string
	Width         int
	Height        int
}

// DeviceController drives a mobile device. Implementations must tolerate
// transiently empty answers: ForegroundPackage returning "" means the device
// has no foreground info yet (an app is still loading), not an error.
type DeviceController interface {
	ScreenData(ctx context.Context) (*ScreenData, error)
	ForegroundPackage(ctx context.Context) (string, error)
	DeviceDate(ctx context.Context) (string, error)

	LaunchApp(ctx context.Context, pkg string) error
	StopApp(ctx context.Context, pkg string) error

	Tap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, startX, startY, endX, endY, durationMS int) error
	InputText(ctx context.Context, text string) error
	EraseChars(ctx context.Context, n int) error
	ClearText(ctx context.Context) error
	PressKey(ctx context.Context, key string) error
	Back(ctx context.Context) error
	OpenLink(ctx context.Context, url string) error
}
