package graphid

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with graphid-specific context.
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

// WithKind adds a kind field to the logger.
func (l *Logger) WithKind(kind Kind) *Logger {
	return &Logger{
		Logger: l.Logger.With("kind", kind.String()),
	}
}

// WithPartition adds a partition field to the logger.
func (l *Logger) WithPartition(partition uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", partition),
	}
}

// WithNamespace adds a namespace field to the logger.
func (l *Logger) WithNamespace(namespace uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("namespace", namespace),
	}
}

// LogAllocation logs a failed id allocation. Successful allocations are too
// frequent to log.
func (l *Logger) LogAllocation(ctx context.Context, kind Kind, partition uint64, err error) {
	if err == nil {
		return
	}
	l.ErrorContext(ctx, "id allocation failed",
		"kind", kind.String(),
		"partition", partition,
		"error", err,
	)
}

// LogRenewal logs a block renewal.
func (l *Logger) LogRenewal(ctx context.Context, partition, namespace uint32, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "id block renewal failed",
			"partition", partition,
			"namespace", namespace,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "id block renewed",
			"partition", partition,
			"namespace", namespace,
			"duration", duration,
		)
	}
}

// LogClose logs manager shutdown.
func (l *Logger) LogClose(ctx context.Context, pools int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "id manager close failed",
			"pools", pools,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "id manager closed",
			"pools", pools,
		)
	}
}
