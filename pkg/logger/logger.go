// Package logger defines the structured logging interface used by the similarity client
// together with no-op, zap and slog backed implementations.
package logger

import (
	"context"
)

// Logger is the interface that wraps basic logging methods.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// The *WithContext variants append the request id carried by ctx, if any.
	DebugWithContext(ctx context.Context, msg string, fields ...Field)
	InfoWithContext(ctx context.Context, msg string, fields ...Field)
	WarnWithContext(ctx context.Context, msg string, fields ...Field)
	ErrorWithContext(ctx context.Context, msg string, fields ...Field)

	With(fields ...Field) Logger

	IsDebugEnabled() bool

	// Sync flushes any buffered log entries. Should be called before program exit.
	Sync() error
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error field. An empty key is logged as "_error".
func ErrorField(key string, err error) Field {
	return Field{Key: key, Value: err}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type requestIDKey struct{}

// RequestIDKey is the field name under which context request ids are logged.
const RequestIDKey = "request_id"

// ContextWithRequestID returns a copy of ctx carrying the given request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

func contextFields(ctx context.Context, fields []Field) []Field {
	id, ok := RequestIDFromContext(ctx)
	if !ok {
		return fields
	}
	out := make([]Field, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, String(RequestIDKey, id))
}

func errorKey(key string) string {
	if key == "" {
		return "_error"
	}
	return key
}
