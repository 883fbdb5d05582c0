package lattice

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with lattice-specific helpers so call sites log
// operations with consistent field names.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	}))}
}

// LogUpsert logs an adjacency upsert.
func (l *Logger) LogUpsert(ctx context.Context, id uint32, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed", "token_id", id, "rows", rows, "error", err)
	} else {
		l.DebugContext(ctx, "upsert completed", "token_id", id, "rows", rows)
	}
}

// LogSuggest logs a hybrid suggestion query.
func (l *Logger) LogSuggest(ctx context.Context, id uint32, k, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "suggest failed", "token_id", id, "k", k, "error", err)
	} else {
		l.DebugContext(ctx, "suggest completed", "token_id", id, "k", k, "results", found)
	}
}

// LogBreathe logs a completed breathing run.
func (l *Logger) LogBreathe(ctx context.Context, runID string, iterations int, reason string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "breathing run failed", "run_id", runID, "error", err)
	} else {
		l.InfoContext(ctx, "breathing run completed",
			"run_id", runID,
			"iterations", iterations,
			"reason", reason,
		)
	}
}

// LogImport logs a bulk import.
func (l *Logger) LogImport(ctx context.Context, imported int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bulk import failed", "imported", imported, "error", err)
	} else {
		l.InfoContext(ctx, "bulk import completed", "imported", imported)
	}
}
