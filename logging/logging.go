// Package logging provides a configured slog logger for the query cache.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the slog logger used by the query cache and its CLI.
type Options struct {
	// Verbose toggles debug level logging when true.
	Verbose bool
	// JSON switches from the text handler to the JSON handler.
	JSON bool
	// Writer directs log output; defaults to os.Stderr when nil.
	Writer io.Writer
}

// New constructs a slog.Logger with query cache defaults.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(writer, hopts))
	}
	return slog.New(slog.NewTextHandler(writer, hopts))
}

// Discard returns a logger that drops everything. Handy in tests and benchmarks.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
