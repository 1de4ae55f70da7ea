package accounts

import (
	"context"
	"fmt"
	"log/slog"
)

// Logger is the logging surface used across the package. It matches the
// go-logger shape so structured loggers can be passed in directly.
type Logger interface {
	Trace(format string, args ...any)
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
	WithContext(ctx context.Context) Logger
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Trace(format string, args ...any) {
	fmt.Printf("[TRC] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Fatal(format string, args ...any) {
	fmt.Printf("[FTL] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) WithContext(context.Context) Logger {
	return d
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// SlogLogger adapts a *slog.Logger to Logger. Format strings are rendered
// with fmt before reaching slog; use With for structured attributes.
type SlogLogger struct {
	l   *slog.Logger
	ctx context.Context
}

// NewSlogLogger wraps l, falling back to slog.Default when l is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l, ctx: context.Background()}
}

const (
	slogLevelTrace = slog.LevelDebug - 4
	slogLevelFatal = slog.LevelError + 4
)

func (s *SlogLogger) log(level slog.Level, format string, args ...any) {
	if !s.l.Enabled(s.ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s.l.Log(s.ctx, level, msg)
}

func (s *SlogLogger) Trace(format string, args ...any) { s.log(slogLevelTrace, format, args...) }

func (s *SlogLogger) Debug(format string, args ...any) { s.log(slog.LevelDebug, format, args...) }

func (s *SlogLogger) Info(format string, args ...any) { s.log(slog.LevelInfo, format, args...) }

func (s *SlogLogger) Warn(format string, args ...any) { s.log(slog.LevelWarn, format, args...) }

func (s *SlogLogger) Error(format string, args ...any) { s.log(slog.LevelError, format, args...) }

func (s *SlogLogger) Fatal(format string, args ...any) { s.log(slogLevelFatal, format, args...) }

func (s *SlogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SlogLogger{l: s.l, ctx: ctx}
}

// With returns a child logger that always includes the given attributes.
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{l: s.l.With(args...), ctx: s.ctx}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
