package tcpnet

import "log/slog"

// Logger is the structured logging interface used throughout the package.
// It matches *slog.Logger, so the standard library logger (or anything
// wrapping it) can be plugged in directly via LoggerOption.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}
