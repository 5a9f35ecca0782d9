package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is a Logger implementation using uber-go/zap
type ZapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{
		logger: logger,
	}
}

// NewDefaultZapLogger creates a ZapLogger with zap's production configuration.
func NewDefaultZapLogger() (*ZapLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

// NewDevelopmentZapLogger creates a ZapLogger writing debug-level console output to stderr.
func NewDevelopmentZapLogger() (*ZapLogger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

func (z *ZapLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, convertFields(fields)...)
}

func (z *ZapLogger) Info(msg string, fields ...Field) {
	z.logger.Info(msg, convertFields(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, convertFields(fields)...)
}

func (z *ZapLogger) Error(msg string, fields ...Field) {
	z.logger.Error(msg, convertFields(fields)...)
}

func (z *ZapLogger) DebugWithContext(ctx context.Context, msg string, fields ...Field) {
	z.logger.Debug(msg, convertFields(contextFields(ctx, fields))...)
}

func (z *ZapLogger) InfoWithContext(ctx context.Context, msg string, fields ...Field) {
	z.logger.Info(msg, convertFields(contextFields(ctx, fields))...)
}

func (z *ZapLogger) WarnWithContext(ctx context.Context, msg string, fields ...Field) {
	z.logger.Warn(msg, convertFields(contextFields(ctx, fields))...)
}

func (z *ZapLogger) ErrorWithContext(ctx context.Context, msg string, fields ...Field) {
	z.logger.Error(msg, convertFields(contextFields(ctx, fields))...)
}

func (z *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{
		logger: z.logger.With(convertFields(fields)...),
	}
}

func (z *ZapLogger) IsDebugEnabled() bool {
	return z.logger.Core().Enabled(zapcore.DebugLevel)
}

func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}

func convertFields(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			zapFields[i] = zap.String(f.Key, v)
		case int:
			zapFields[i] = zap.Int(f.Key, v)
		case int64:
			zapFields[i] = zap.Int64(f.Key, v)
		case bool:
			zapFields[i] = zap.Bool(f.Key, v)
		case float64:
			zapFields[i] = zap.Float64(f.Key, v)
		case error:
			if v == nil {
				zapFields[i] = zap.Any(errorKey(f.Key), nil)
			} else {
				zapFields[i] = zap.NamedError(errorKey(f.Key), v)
			}
		default:
			zapFields[i] = zap.Any(f.Key, v)
		}
	}
	return zapFields
}
