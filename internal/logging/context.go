package logging

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
)

// WithRequestIDCtx returns a new context with the request ID set.
func WithRequestIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx extracts the request ID from the context.
func RequestIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromCtx returns a logger from the context. If none is attached, the global
// logger is returned, stamped with the context's request ID when present.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	l := Global()
	if id := RequestIDFromCtx(ctx); id != "" {
		return l.WithRequestID(id)
	}
	return l
}
