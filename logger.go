package rangeidx

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/rangeidx/parts"
)

// Logger wraps slog.Logger with rangeidx-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithResource adds a resource field to the logger.
func (l *Logger) WithResource(resource string) *Logger {
	return &Logger{
		Logger: l.Logger.With("resource", resource),
	}
}

// WithMethod adds a grouping method field to the logger.
func (l *Logger) WithMethod(method string) *Logger {
	return &Logger{
		Logger: l.Logger.With("method", method),
	}
}

// LogIndexBuild logs the outcome of loading or building an index.
func (l *Logger) LogIndexBuild(ctx context.Context, resource string, entries int, built bool, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"resource", resource,
			"error", err,
		)
		return
	}
	if built {
		l.InfoContext(ctx, "index built",
			"resource", resource,
			"entries", entries,
			"duration", d,
		)
		return
	}
	l.LogCacheHit(ctx, resource, entries)
}

// LogCacheHit logs an index served from the cache.
func (l *Logger) LogCacheHit(ctx context.Context, resource string, entries int) {
	l.DebugContext(ctx, "index loaded from cache",
		"resource", resource,
		"entries", entries,
	)
}

// LogLookup logs a selection.
func (l *Logger) LogLookup(ctx context.Context, selection string, matched int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "lookup failed",
			"selection", selection,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "lookup completed",
			"selection", selection,
			"matched", matched,
		)
	}
}

// LogUnknownKey logs a selection key the index does not know. Such keys
// are ignored.
func (l *Logger) LogUnknownKey(ctx context.Context, key string) {
	l.WarnContext(ctx, "ignoring unknown selection key",
		"key", key,
	)
}

// LogFetch logs a retrieval.
func (l *Logger) LogFetch(ctx context.Context, stats parts.Stats, d time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "retrieval completed with failures",
			"requests", stats.Requests,
			"parts", stats.Parts,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "retrieval completed",
			"requests", stats.Requests,
			"parts", stats.Parts,
			"requested_bytes", stats.RequestedBytes,
			"downloaded_bytes", stats.DownloadedBytes,
			"duration", d,
		)
	}
}
