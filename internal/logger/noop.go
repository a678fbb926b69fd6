package logger

// NoOpLogger is a logger that does nothing. It is used in tests and as a
// safe default before the real logger is constructed.
type NoOpLogger struct{}

// NewNoOp creates a new no-op logger instance.
func NewNoOp() Interface {
	return &NoOpLogger{}
}

// Debug logs a debug message.
func (l *NoOpLogger) Debug(msg string, fields ...any) {}

// Info logs an info message.
func (l *NoOpLogger) Info(msg string, fields ...any) {}

// Warn logs a warning message.
func (l *NoOpLogger) Warn(msg string, fields ...any) {}

// Error logs an error message.
func (l *NoOpLogger) Error(msg string, fields ...any) {}

// Fatal logs a fatal message and exits.
func (l *NoOpLogger) Fatal(msg string, fields ...any) {}

// With creates a new logger with the given fields.
func (l *NoOpLogger) With(fields ...any) Interface { return l }

// WithError adds an error to the logger.
func (l *NoOpLogger) WithError(err error) Interface { return l }

// WithComponent adds a component name to the logger.
func (l *NoOpLogger) WithComponent(component string) Interface { return l }

// WithRunID adds a run ID to the logger.
func (l *NoOpLogger) WithRunID(runID string) Interface { return l }

// WithQuery adds a query name to the logger.
func (l *NoOpLogger) WithQuery(name string) Interface { return l }

// WithPlatform adds a platform name to the logger.
func (l *NoOpLogger) WithPlatform(platform string) Interface { return l }
