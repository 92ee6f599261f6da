package crtree

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with crtree-specific context.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000),
		})),
	}
}

// WithStore adds the node store path to the logger.
func (l *Logger) WithStore(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", path),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, payload uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"payload", payload,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"payload", payload,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"removed", removed,
		)
	}
}

// LogSave logs a save to the node store.
func (l *Logger) LogSave(ctx context.Context, pages int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"pages_written", pages,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "save completed",
			"pages_written", pages,
		)
	}
}

// LogLoad logs a load from the node store.
func (l *Logger) LogLoad(ctx context.Context, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"records", records,
		)
	}
}

// LogBackup logs a snapshot backup.
func (l *Logger) LogBackup(ctx context.Context, name string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup saved",
			"name", name,
			"records", records,
		)
	}
}

// LogRestore logs a snapshot restore.
func (l *Logger) LogRestore(ctx context.Context, name string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"records_restored", records,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"name", name,
			"records_restored", records,
		)
	}
}
