package log

import (
	"io"
	"log/slog"
)

// NewConsoleHandler creates a text or json handler writing to w.
func NewConsoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
