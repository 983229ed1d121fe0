package botfs

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with BotFS-specific context.
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
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithVolume adds the volume name to the logger.
func (l *Logger) WithVolume(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("volume", name),
	}
}

// WithFile adds a file name field to the logger.
func (l *Logger) WithFile(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", name),
	}
}

// LogCreate logs a file creation.
func (l *Logger) LogCreate(ctx context.Context, name string, start, end uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"file", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"file", name,
			"start", start,
			"end", end,
		)
	}
}

// LogUnlink logs a file removal.
func (l *Logger) LogUnlink(ctx context.Context, name string, start, end uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "unlink failed",
			"file", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "unlink completed",
			"file", name,
			"start", start,
			"end", end,
		)
	}
}

// LogRename logs a rename.
func (l *Logger) LogRename(ctx context.Context, oldName, newName string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rename failed",
			"from", oldName,
			"to", newName,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "rename completed",
			"from", oldName,
			"to", newName,
		)
	}
}

// LogAllocation logs allocator activity. Exhaustion is logged at warn level.
func (l *Logger) LogAllocation(ctx context.Context, blocks, alignment uint32, start uint32, err error) {
	if err != nil {
		l.WarnContext(ctx, "allocation failed",
			"blocks", blocks,
			"alignment", alignment,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "allocated",
			"blocks", blocks,
			"alignment", alignment,
			"start", start,
		)
	}
}

// LogTransport logs a failed block transfer.
func (l *Logger) LogTransport(ctx context.Context, op string, block uint32, err error) {
	l.ErrorContext(ctx, "block transfer failed",
		"op", op,
		"block", block,
		"error", err,
	)
}

// LogMount logs a volume load.
func (l *Logger) LogMount(ctx context.Context, name string, blocks uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mount failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "volume mounted",
			"volume", name,
			"blocks", blocks,
		)
	}
}

// LogBackup logs a backup or restore.
func (l *Logger) LogBackup(ctx context.Context, op, target string, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"target", target,
		)
	}
}
