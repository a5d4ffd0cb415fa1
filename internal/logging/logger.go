// Package logging builds the slog loggers shared by the CLI and the servers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type options struct {
	out  io.Writer
	json bool
}

// Option configures New.
type Option func(*options)

// WithWriter redirects output (default os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithJSON switches to the JSON handler, for servers feeding a log collector.
func WithJSON(enabled bool) Option {
	return func(o *options) {
		o.json = enabled
	}
}

// New creates a configured application logger.
// It writes to Stderr (to separate from Stdout flow UI/JSON-RPC).
// It standardizes common keys (e.g., "error" -> "err") and never prints a
// bearer credential.
func New(level slog.Level, opts ...Option) *slog.Logger {
	o := options{out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case "error":
				a.Key = "err"
			case "credential", "token":
				a.Value = slog.StringValue("***")
			}
			return a
		},
	}
	if o.json {
		return slog.New(slog.NewJSONHandler(o.out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(o.out, handlerOpts))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
