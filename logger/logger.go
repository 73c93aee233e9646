// Package logger defines the logging abstraction used across go-apt.
//
// Device adaptors are usually embedded into larger control systems that
// carry their own logging setup, so every component accepts the Logger
// interface instead of a concrete implementation. NewSlog provides a
// slog-backed default, and MockLogger supports expectation-style
// assertions in tests.
package logger

// LogLevel indicates the logging severity level.
type LogLevel = int8

const (
	// DebugLevel is verbose protocol-level detail, usually disabled in
	// production.
	DebugLevel LogLevel = iota - 1
	// InfoLevel is the default priority.
	InfoLevel
	// WarnLevel marks conditions worth attention that do not interrupt
	// operation.
	WarnLevel
	// ErrorLevel marks failures that require attention.
	ErrorLevel
	// FatalLevel logs the message and then terminates the process.
	FatalLevel
)

// Logger is the common logging interface. Implementations must be safe
// for concurrent use.
type Logger interface {
	// Debug logs a message at DebugLevel with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel with optional key-value pairs.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel and calls os.Exit(1), even if
	// logging at FatalLevel is disabled.
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger with the given key-value pairs bound
	// to every message. The child shares the parent's dynamic level.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level.
	Level() LogLevel
	// SetLevel changes the minimum enabled level at runtime.
	SetLevel(level LogLevel)
}
