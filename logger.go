package pagedir

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with directory-specific context.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000), // Unreachable level
		})),
	}
}

// WithID adds a segment id field to the logger.
func (l *Logger) WithID(id SegmentID) *Logger {
	return &Logger{
		Logger: l.Logger.With("segment_id", id.String()),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogSaveMetas logs a reconciliation.
func (l *Logger) LogSaveMetas(ctx context.Context, xid XID, stats SaveStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save metas failed",
			"xid", xid.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "save metas completed",
			"xid", xid.String(),
			"created", stats.Created,
			"modified", stats.Modified,
			"deleted", stats.Deleted,
			"orphaned", stats.Orphaned,
		)
	}
}

// LogLoadMetas logs a visibility resolution.
func (l *Logger) LogLoadMetas(ctx context.Context, policy string, segments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load metas failed",
			"policy", policy,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load metas completed",
			"policy", policy,
			"segments", segments,
		)
	}
}

// LogGarbageCollect logs a garbage collection pass.
func (l *Logger) LogGarbageCollect(ctx context.Context, stats GCStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "garbage collection failed",
			"entries", stats.Entries,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "garbage collection completed",
			"entries", stats.Entries,
			"orphans", stats.Orphans,
			"chains", stats.Chains,
			"merges", stats.Merges,
		)
	}
}

// LogCheckpoint logs a checkpoint.
func (l *Logger) LogCheckpoint(ctx context.Context, info CheckpointInfo, pruned int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint saved",
			"name", info.Name,
			"pages", info.Pages,
			"bytes", info.Bytes,
			"pruned", pruned,
			"duration", info.Duration.Round(time.Millisecond),
		)
	}
}
