// Package logger provides a slog-backed structured logger with
// context-aware methods used across the SDK.
package logger

import (
	"context"
	"io"
	"log/slog"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LoggerInterface is the logging contract used by services and adapters.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) LoggerInterface
	Slog() *slog.Logger
}

// Logger implements LoggerInterface on top of log/slog.
type Logger struct {
	sl *slog.Logger
}

// New creates a Logger writing to w at the given level. The service name is
// attached to every record. extra attributes may be nil.
func New(w io.Writer, level Level, service string, extra []slog.Attr) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	sl := slog.New(handler).With("service", service)
	for _, attr := range extra {
		sl = sl.With(attr)
	}
	return &Logger{sl: sl}
}

// FromSlog wraps an existing slog.Logger.
func FromSlog(sl *slog.Logger) *Logger {
	return &Logger{sl: sl}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.sl.DebugContext(ctx, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.sl.InfoContext(ctx, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.sl.WarnContext(ctx, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.sl.ErrorContext(ctx, msg, args...)
}

// With returns a logger with the given attributes attached.
func (l *Logger) With(args ...any) LoggerInterface {
	return &Logger{sl: l.sl.With(args...)}
}

// Slog exposes the underlying slog.Logger for services that take one directly.
func (l *Logger) Slog() *slog.Logger {
	return l.sl
}
