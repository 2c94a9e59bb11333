package logger

// noopLogger discards all log messages.
type noopLogger struct{}

// Noop returns a logger that discards everything.
func Noop() Logger {
	return &noopLogger{}
}

func (n *noopLogger) Debug(msg string, args ...any) {}
func (n *noopLogger) Info(msg string, args ...any)  {}
func (n *noopLogger) Warn(msg string, args ...any)  {}
func (n *noopLogger) Error(msg string, args ...any) {}

// With returns the same noop logger.
func (n *noopLogger) With(args ...any) Logger {
	return n
}
