package logger

// defLogger backs the package-level logging functions. It writes JSON
// to stdout at InfoLevel until SetLevel changes it.
var defLogger = NewSlog(InfoLevel, false)

// Debug logs to the default logger at DebugLevel.
func Debug(msg string, keysAndValues ...any) {
	defLogger.Debug(msg, keysAndValues...)
}

// Info logs to the default logger at InfoLevel.
func Info(msg string, keysAndValues ...any) {
	defLogger.Info(msg, keysAndValues...)
}

// Warn logs to the default logger at WarnLevel.
func Warn(msg string, keysAndValues ...any) {
	defLogger.Warn(msg, keysAndValues...)
}

// Error logs to the default logger at ErrorLevel.
func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

// Fatal logs to the default logger and terminates the process.
func Fatal(msg string, keysAndValues ...any) {
	defLogger.Fatal(msg, keysAndValues...)
}

// SetLevel changes the default logger's minimum enabled level.
func SetLevel(level LogLevel) {
	defLogger.SetLevel(level)
}

// GetLogger returns the default logger.
func GetLogger() Logger {
	return defLogger
}

// With returns a child of the default logger with the given key-value
// pairs bound to every message.
func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}
