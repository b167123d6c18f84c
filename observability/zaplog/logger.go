// Package zaplog adapts core.Logger to go.uber.org/zap.
package zaplog

import (
	"github.com/Swind/go-fiber-scheduler/core"
	"go.uber.org/zap"
)

// Logger implements core.Logger on top of a zap.Logger.
type Logger struct {
	base *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps an existing zap.Logger. A nil logger falls back to zap.NewNop().
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base}
}

// NewProduction creates a Logger backed by zap's production config.
func NewProduction() (*Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{base: base}, nil
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.base.Debug(msg, zapFields(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...core.Field) {
	l.base.Info(msg, zapFields(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.base.Warn(msg, zapFields(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...core.Field) {
	l.base.Error(msg, zapFields(fields)...)
}

func zapFields(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
