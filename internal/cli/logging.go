package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// newLogger writes operational logs to w. Format and level come from
// NB_LOG_FORMAT (text|json) and NB_LOG_LEVEL (debug|info|warn|error).
func newLogger(w io.Writer, forceJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("NB_LOG_LEVEL"))}
	if forceJSON || strings.EqualFold(strings.TrimSpace(os.Getenv("NB_LOG_FORMAT")), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
