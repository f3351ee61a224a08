package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger backs Logger with a sugared zap.Logger emitting JSON, selected
// by cmd/ingestworker when LOG_FORMAT=json. Field maps are forwarded to
// zap.Any; WithField/WithFields return a child logger via zap's With, which
// shares the underlying core rather than copying a map on every call.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger builds a production JSON logger at InfoLevel.
func NewZapLogger() (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: base.Sugar(), level: level}, nil
}

func (z *ZapLogger) fieldArgs(fields map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (z *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	z.sugar.Debugw(msg, z.fieldArgs(fields)...)
}

func (z *ZapLogger) Info(msg string, fields map[string]interface{}) {
	z.sugar.Infow(msg, z.fieldArgs(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	z.sugar.Warnw(msg, z.fieldArgs(fields)...)
}

func (z *ZapLogger) Error(msg string, fields map[string]interface{}) {
	z.sugar.Errorw(msg, z.fieldArgs(fields)...)
}

func (z *ZapLogger) SetLevel(level string) {
	switch level {
	case "DEBUG", "debug":
		z.level.SetLevel(zapcore.DebugLevel)
	case "WARN", "warn", "WARNING", "warning":
		z.level.SetLevel(zapcore.WarnLevel)
	case "ERROR", "error":
		z.level.SetLevel(zapcore.ErrorLevel)
	default:
		z.level.SetLevel(zapcore.InfoLevel)
	}
}

func (z *ZapLogger) WithField(key string, value interface{}) Logger {
	return &ZapLogger{sugar: z.sugar.With(key, value), level: z.level}
}

func (z *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	return &ZapLogger{sugar: z.sugar.With(z.fieldArgs(fields)...), level: z.level}
}
