package core

import (
	"fmt"
	"log"
	"strings"
)

// Logger is the logging sink of the runtime.
// Implementations can forward to any structured logger (logrus, zap, slog, ...).
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger is a simple logger implementation using the standard log package
type DefaultLogger struct{}

// NewDefaultLogger creates a new DefaultLogger
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{}
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log("DEBUG", msg, fields...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log("INFO", msg, fields...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log("WARN", msg, fields...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log("ERROR", msg, fields...)
}

func (l *DefaultLogger) log(level, msg string, fields ...Field) {
	log.Println(formatLogLine(level, msg, fields))
}

func formatLogLine(level, msg string, fields []Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f.Key, f.Value)
		}
		b.WriteString("}")
	}
	return b.String()
}

// prefixedLogger adds fixed fields to every message.
type prefixedLogger struct {
	base   Logger
	fields []Field
}

// WithFields returns a Logger that appends fields to every message.
func WithFields(base Logger, fields ...Field) Logger {
	if base == nil {
		return NewNoOpLogger()
	}
	if _, ok := base.(*NoOpLogger); ok {
		return base
	}
	return &prefixedLogger{base: base, fields: fields}
}

func (l *prefixedLogger) with(fields []Field) []Field {
	out := make([]Field, 0, len(l.fields)+len(fields))
	out = append(out, l.fields...)
	return append(out, fields...)
}

func (l *prefixedLogger) Debug(msg string, fields ...Field) { l.base.Debug(msg, l.with(fields)...) }
func (l *prefixedLogger) Info(msg string, fields ...Field)  { l.base.Info(msg, l.with(fields)...) }
func (l *prefixedLogger) Warn(msg string, fields ...Field)  { l.base.Warn(msg, l.with(fields)...) }
func (l *prefixedLogger) Error(msg string, fields ...Field) { l.base.Error(msg, l.with(fields)...) }

// NoOpLogger discards all log messages. It is the runtime default.
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
