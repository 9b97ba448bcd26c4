// Package logger provides structured logging for the pipeline runtime.
//
// It wraps Go's standard log/slog with:
//   - Context-aware field extraction (run ID, step ID, pipeline ID, ...)
//   - Per-module log level overrides
//   - Redaction of values that look like secrets, so backend credentials
//     and connector tokens never reach log output verbatim
//
// All exported functions use the global DefaultLogger, which can be
// reconfigured at runtime via Configure or SetLogger.
package logger

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance. It is safe for
// concurrent use and initialized with slog.LevelInfo by default.
var DefaultLogger *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	DefaultLogger = slog.New(handler)
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) { DefaultLogger.Info(msg, args...) }

// InfoContext logs an informational message, enriched with context fields.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }

// DebugContext logs a debug message, enriched with context fields.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message. Use for recoverable or non-critical issues.
func Warn(msg string, args ...any) { DefaultLogger.Warn(msg, args...) }

// WarnContext logs a warning message, enriched with context fields.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

// ErrorContext logs an error message, enriched with context fields.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// StepEvent logs a step lifecycle event (start, complete, fail) with the
// fields common to all step telemetry hooks.
func StepEvent(ctx context.Context, event, stepID string, shape string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs, "step_id", stepID, "shape", shape)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "step."+event, allAttrs...)
}

// CacheEvent logs a cache read/write decision.
func CacheEvent(ctx context.Context, status string, key string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "cache_status", status, "cache_key", Redact(key))
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "cache.lookup", allAttrs...)
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|secret|token|apikey|api_key)=[^&\s]+`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_\-.]+`),
	regexp.MustCompile(`redis://[^:]+:[^@]+@`),
}

// Redact removes values that look like credentials from a string so they
// never reach log sinks. Backend connection strings and cache key material
// derived from request payloads are the common callers.
func Redact(input string) string {
	result := input
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "redis://") {
				return "redis://[REDACTED]@"
			}
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if idx := strings.IndexByte(match, '='); idx != -1 {
				return match[:idx+1] + "[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
