package bootstrap

import (
	"io"
	"log/slog"
	"strings"

	"github/martinmaurice/llmgate/pkg/env"
)

// NewLogger writes JSON in production and text elsewhere.
func NewLogger(w io.Writer, spec *env.Specification) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(spec.LogLevel)}
	if spec.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
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
