package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logOutput is the destination for log records produced by Configure.
var logOutput io.Writer = os.Stderr

// customHandler holds a handler installed via SetLogger, if any. When set,
// Configure leaves the logger alone so callers retain full control over
// handler construction (e.g. tests wiring a recording handler).
var customHandler slog.Handler

// SetLogger replaces DefaultLogger with one built on the given handler and
// marks the logger as externally managed, so later Configure calls are no-ops.
func SetLogger(handler slog.Handler) {
	customHandler = handler
	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// SetOutput directs log output to w, rebuilding DefaultLogger as a text
// handler at the LOG_LEVEL-derived level. A nil w resets output to os.Stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	DefaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel parses a level name ("debug", "info", "warn", "error") into a
// slog.Level, defaulting to LevelInfo for unrecognized input.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
