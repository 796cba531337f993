// Package logging configures the structured logger used throughout rouilleftpd.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger writing JSON records to stderr at the
// given level ("debug", "info", "warn", "error"; unrecognized values fall
// back to "info").
func NewLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
