package core

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging interface used throughout the library.
// Field maps carry structured context; implementations must not assume any
// particular key set.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// NoOpLogger discards all log output. It is the default for sessions and
// receivers constructed without a logger.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// ZapLogger adapts a zap.Logger to the Logger interface.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l}
}

// NewProductionLogger builds a JSON zap logger writing to stderr, honoring
// the ZHMC_LOG environment variable ("debug" lowers the level, "off"
// disables output entirely).
func NewProductionLogger() Logger {
	level := zapcore.InfoLevel
	switch os.Getenv("ZHMC_LOG") {
	case "debug":
		level = zapcore.DebugLevel
	case "off":
		return &NoOpLogger{}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return &NoOpLogger{}
	}
	return &ZapLogger{l: l}
}

func (z *ZapLogger) Info(msg string, fields map[string]interface{}) {
	z.l.Info(msg, zapFields(fields)...)
}

func (z *ZapLogger) Error(msg string, fields map[string]interface{}) {
	z.l.Error(msg, zapFields(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields map[string]interface{}) {
	z.l.Warn(msg, zapFields(fields)...)
}

func (z *ZapLogger) Debug(msg string, fields map[string]interface{}) {
	z.l.Debug(msg, zapFields(fields)...)
}

func zapFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// redacted replaces credential and token values in log fields. Every log
// call that might carry a password, session token or Authorization header
// value must pass the value through this function.
const redacted = "***"

// redactBody blanks the password field of a logon request body before it is
// logged. The body itself is never modified.
func redactBody(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return nil
	}
	if _, ok := body["password"]; !ok {
		return body
	}
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "password" || k == "new-password" {
			out[k] = redacted
		} else {
			out[k] = v
		}
	}
	return out
}
