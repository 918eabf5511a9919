package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Text output to stdout; handlers and
// services attach request-scoped attributes themselves.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
