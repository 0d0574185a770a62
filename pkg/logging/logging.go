// Package logging provides a slog.Logger factory used by all anonmirror apps.
//
// Log format is controlled by the LOG_FORMAT environment variable:
//
//	LOG_FORMAT=json    structured JSON, suitable for log aggregators
//	LOG_FORMAT=text    human-readable key=value pairs, for local development
//
// When LOG_FORMAT is unset the caller's default applies: servers log JSON,
// the mirror CLI logs text.
//
// Log level is controlled by LOG_LEVEL (debug, info, warn, error; default info).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format names accepted by LOG_FORMAT.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// New returns a JSON-by-default logger on stdout configured from environment variables.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, FormatJSON)
}

// NewWithWriter returns a logger writing to w. defaultFormat is used when
// LOG_FORMAT is unset.
func NewWithWriter(w io.Writer, defaultFormat string) *slog.Logger {
	return newLogger(w, os.Getenv("LOG_FORMAT"), defaultFormat, parseLevel(os.Getenv("LOG_LEVEL")))
}

// WithLevel returns a logger like NewWithWriter but with the level forced.
// The CLI uses it for --verbose.
func WithLevel(w io.Writer, defaultFormat string, level slog.Level) *slog.Logger {
	return newLogger(w, os.Getenv("LOG_FORMAT"), defaultFormat, level)
}

func newLogger(w io.Writer, format, defaultFormat string, level slog.Level) *slog.Logger {
	if format == "" {
		format = defaultFormat
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatText, "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
