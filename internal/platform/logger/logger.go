package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Services derive component loggers
// with With("component", ...).
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("OPSGATE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
