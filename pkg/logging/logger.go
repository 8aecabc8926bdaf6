// Package logging provides structured logging for ripple components.
//
// It is a thin layer over log/slog: a Config picks the level and output
// format, and every logger carries a "service" attribute so aggregated
// logs can be filtered by component.
package logging

import (
	"io"
	"log/slog"
	"os"
)

type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output from human-readable text to JSON.
	JSON bool

	// Service identifies the component generating logs. It is attached
	// to every entry as the "service" attribute.
	Service string

	// Output overrides the destination. Default: stderr.
	Output io.Writer
}

// New creates a logger with the given configuration.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// Default returns a text logger at Info level writing to stderr.
func Default() *slog.Logger {
	return New(Config{Service: "ripple"})
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
