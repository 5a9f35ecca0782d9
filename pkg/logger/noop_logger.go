package logger

import "context"

// NoopLogger discards everything. It is the client default.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (n *NoopLogger) Debug(msg string, fields ...Field) {}

func (n *NoopLogger) Info(msg string, fields ...Field) {}

func (n *NoopLogger) Warn(msg string, fields ...Field) {}

func (n *NoopLogger) Error(msg string, fields ...Field) {}

func (n *NoopLogger) DebugWithContext(ctx context.Context, msg string, fields ...Field) {}

func (n *NoopLogger) InfoWithContext(ctx context.Context, msg string, fields ...Field) {}

func (n *NoopLogger) WarnWithContext(ctx context.Context, msg string, fields ...Field) {}

func (n *NoopLogger) ErrorWithContext(ctx context.Context, msg string, fields ...Field) {}

func (n *NoopLogger) With(fields ...Field) Logger {
	return n
}

func (n *NoopLogger) IsDebugEnabled() bool {
	return false
}

func (n *NoopLogger) Sync() error {
	return nil
}
