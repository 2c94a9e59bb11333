package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// New creates a new logger backed by the given slog handler.
func New(handler slog.Handler) Logger {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &slogLogger{logger: slog.New(handler)}
}

// NewJSON creates a new logger with JSON output at the given minimum level.
func NewJSON(writer io.Writer, level slog.Level) Logger {
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	return &slogLogger{logger: slog.New(handler)}
}

// NewText creates a new logger with text output at the given minimum level.
func NewText(writer io.Writer, level slog.Level) Logger {
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	return &slogLogger{logger: slog.New(handler)}
}

// Default returns a default logger (Info level, JSON output to stderr).
func Default() Logger {
	return NewJSON(os.Stderr, slog.LevelInfo)
}

// ParseLevel parses a level name ("debug", "info", "warn", "error") into a
// slog.Level. Unknown names fall back to Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
