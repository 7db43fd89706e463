package types

import "log/slog"

// slogLogger wraps *slog.Logger to implement the Logger interface.
// slog.Logger satisfies Info/Warn/Error directly but With returns
// *slog.Logger, not Logger, so an adapter is necessary.
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (a *slogLogger) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogLogger) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogLogger) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: a.logger.With(args...)}
}

// NopLogger discards all log output. Test helper.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) With(...any) Logger   { return NopLogger{} }

// Compile-time assertions.
var (
	_ Logger = (*slogLogger)(nil)
	_ Logger = NopLogger{}
)
