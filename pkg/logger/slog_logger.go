package logger

import (
	"context"
	"io"
	"log/slog"
)

// SlogLogger is a Logger implementation using the standard library's slog package
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger,
	}
}

// NewTextSlogLogger writes human-readable logs at the given level to w.
func NewTextSlogLogger(w io.Writer, level slog.Level) *SlogLogger {
	return &SlogLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

func (s *SlogLogger) Debug(msg string, fields ...Field) {
	s.logger.Debug(msg, convertFieldsToAttrs(fields)...)
}

func (s *SlogLogger) Info(msg string, fields ...Field) {
	s.logger.Info(msg, convertFieldsToAttrs(fields)...)
}

func (s *SlogLogger) Warn(msg string, fields ...Field) {
	s.logger.Warn(msg, convertFieldsToAttrs(fields)...)
}

func (s *SlogLogger) Error(msg string, fields ...Field) {
	s.logger.Error(msg, convertFieldsToAttrs(fields)...)
}

func (s *SlogLogger) DebugWithContext(ctx context.Context, msg string, fields ...Field) {
	s.logger.DebugContext(ctx, msg, convertFieldsToAttrs(contextFields(ctx, fields))...)
}

func (s *SlogLogger) InfoWithContext(ctx context.Context, msg string, fields ...Field) {
	s.logger.InfoContext(ctx, msg, convertFieldsToAttrs(contextFields(ctx, fields))...)
}

func (s *SlogLogger) WarnWithContext(ctx context.Context, msg string, fields ...Field) {
	s.logger.WarnContext(ctx, msg, convertFieldsToAttrs(contextFields(ctx, fields))...)
}

func (s *SlogLogger) ErrorWithContext(ctx context.Context, msg string, fields ...Field) {
	s.logger.ErrorContext(ctx, msg, convertFieldsToAttrs(contextFields(ctx, fields))...)
}

func (s *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{
		logger: s.logger.With(convertFieldsToAttrs(fields)...),
	}
}

func (s *SlogLogger) IsDebugEnabled() bool {
	return s.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Sync is a no-op; slog handlers do not buffer.
func (s *SlogLogger) Sync() error {
	return nil
}

func convertFieldsToAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			attrs = append(attrs, slog.String(f.Key, v))
		case int:
			attrs = append(attrs, slog.Int(f.Key, v))
		case int64:
			attrs = append(attrs, slog.Int64(f.Key, v))
		case bool:
			attrs = append(attrs, slog.Bool(f.Key, v))
		case float64:
			attrs = append(attrs, slog.Float64(f.Key, v))
		case error:
			if v == nil {
				attrs = append(attrs, slog.Any(errorKey(f.Key), nil))
			} else {
				attrs = append(attrs, slog.String(errorKey(f.Key), v.Error()))
			}
		default:
			attrs = append(attrs, slog.Any(f.Key, v))
		}
	}
	return attrs
}
