// Package log provides a leveled logger with structured logging support.
package log

import "context"

type contextKey byte

const loggerContextKey contextKey = iota

var std = New(WithTerminalFormatter())

// Default returns the standard logger. Library packages receive their logger explicitly and
// only `main` reaches for this one.
func Default() Logger {
	return std
}

// ContextWithLogger returns a copy of ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or the standard logger if there is none.
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey).(Logger); ok && logger != nil {
		return logger
	}

	return std
}
