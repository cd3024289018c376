// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is text or json. Empty means text.
	Format string
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", level)
	}
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	hOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, hOpts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, hOpts)
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", opts.Format)
	}

	return slog.New(handler), nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, opts Options) (*slog.Logger, error) {
	logger, err := New(w, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
