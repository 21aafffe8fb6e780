package internal

import (
	"io"
	"log/slog"
)

// NewLogger builds the process logger from the loaded configuration:
// human-readable text in development, JSON elsewhere. An unrecognized
// LOG_LEVEL falls back to info rather than failing startup.
func NewLogger(w io.Writer, cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
