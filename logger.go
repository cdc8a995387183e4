package arraywin

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with arraywin-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithPath adds a dataset path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithChunkSize adds a chunk size field to the logger.
func (l *Logger) WithChunkSize(rows int) *Logger {
	return &Logger{
		Logger: l.Logger.With("chunk_size", rows),
	}
}

// LogOpen logs opening a series.
func (l *Logger) LogOpen(ctx context.Context, path string, shape []int, rate float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "series opened",
			"path", path,
			"shape", shape,
			"rate", rate,
		)
	}
}

// LogChunkLoad logs a chunk lookup. Hits and cancellations log at debug.
func (l *Logger) LogChunkLoad(ctx context.Context, index int, cached bool, duration time.Duration, err error) {
	switch {
	case err != nil && IsCancelled(err):
		l.DebugContext(ctx, "chunk load cancelled",
			"index", index,
		)
	case err != nil:
		l.WarnContext(ctx, "chunk load failed",
			"index", index,
			"error", err,
		)
	default:
		l.DebugContext(ctx, "chunk load completed",
			"index", index,
			"cached", cached,
			"duration", duration,
		)
	}
}

// LogAssembly logs one assembly call.
func (l *Logger) LogAssembly(ctx context.Context, chunks, fetched int, completed bool, duration time.Duration, err error) {
	switch {
	case err != nil && IsCancelled(err):
		l.DebugContext(ctx, "assembly cancelled",
			"chunks", chunks,
		)
	case err != nil:
		l.ErrorContext(ctx, "assembly failed",
			"chunks", chunks,
			"fetched", fetched,
			"error", err,
		)
	case !completed:
		l.InfoContext(ctx, "assembly budget exceeded",
			"chunks", chunks,
			"fetched", fetched,
			"duration", duration,
		)
	default:
		l.DebugContext(ctx, "assembly completed",
			"chunks", chunks,
			"fetched", fetched,
			"duration", duration,
		)
	}
}

// LogWindow logs a frame delivered for a window request.
func (l *Logger) LogWindow(ctx context.Context, startSec, endSec float64, samples int, completed bool) {
	l.DebugContext(ctx, "window frame",
		"start_sec", startSec,
		"end_sec", endSec,
		"samples", samples,
		"completed", completed,
	)
}
