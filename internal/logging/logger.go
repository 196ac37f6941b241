// Package logging builds the structured loggers the engine and its adapters
// share. Session output goes to stdout, so logs always target another writer.
package logging

import (
	"io"
	"log/slog"
)

// New creates the application logger on w. It rewrites the "error" key to
// "err" so failures carry one canonical key across the codebase.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: normalizeAttr,
	}))
}

func normalizeAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

// ForSession returns a child logger tagged with the session id.
func ForSession(l *slog.Logger, sessionID string) *slog.Logger {
	return l.With(slog.String("session", sessionID))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return New(io.Discard, slog.LevelError)
}
