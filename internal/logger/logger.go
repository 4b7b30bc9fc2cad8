// Package logger provides module-scoped structured logging on top of log/slog.
//
// Components receive a Logger and derive their own scope with Module:
//
//	log := central.Module("classifier")
//	log.Info("attempt failed", logger.Int("attempt", 2), logger.Error(err))
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents a log level as configured by users
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a typed key/value pair attached to a log entry
type Field struct {
	Key   string
	Value any
}

// internKey deduplicates field keys, most of which are repeated constants
func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the logging interface used throughout the application
type Logger interface {
	// Module returns a child logger scoped to a sub-module ("parent.child")
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every entry
	With(fields ...Field) Logger
	// WithContext returns a logger carrying values such as the trace id from ctx
	WithContext(ctx context.Context) Logger

	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

// Field constructors. Keys are interned since most are string constants.
func String(key, value string) Field                 { return Field{Key: internKey(key), Value: value} }
func Int(key string, value int) Field                { return Field{Key: internKey(key), Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: internKey(key), Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: internKey(key), Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: internKey(key), Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: internKey(key), Value: value} }
func Time(key string, value time.Time) Field         { return Field{Key: internKey(key), Value: value} }
func Any(key string, value any) Field                { return Field{Key: internKey(key), Value: value} }

// Error stores err's message under "error". A nil err yields a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}
