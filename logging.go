package rtkernel

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the kernel's structured logging sink. Dispatch-path code calls
// it with a message and an even-length list of alternating key/value
// pairs, which is translated into whatever structured representation the
// underlying implementation uses. Kernel construction defaults to a
// no-op implementation (see WithLogger to override).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// noOpLogger discards everything. It is the default, since a kernel
// embedded in a microcontroller-style application typically has nowhere
// cheap to put log output unless the caller configures one.
type noOpLogger struct{}

// NewNoOpLogger returns a Logger that discards every call.
func NewNoOpLogger() Logger { return noOpLogger{} }

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

// slogLogger adapts a *logiface.Logger[*islog.Event] (itself backed by an
// arbitrary log/slog.Handler) to the kernel's Logger interface.
type slogLogger struct {
	l *logiface.Logger[*islog.Event]
}

// NewSlogLogger builds a Logger that writes through the given slog.Handler,
// via logiface's typed builder API (the same integration path the rest of
// this module's ancestry uses for structured logging).
func NewSlogLogger(handler slog.Handler) Logger {
	return &slogLogger{l: islog.L.New(islog.L.WithSlogHandler(handler))}
}

func (s *slogLogger) log(b *logiface.Builder[*islog.Event], msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}

func (s *slogLogger) Debug(msg string, kv ...any) { s.log(s.l.Debug(), msg, kv) }
func (s *slogLogger) Info(msg string, kv ...any)  { s.log(s.l.Info(), msg, kv) }
func (s *slogLogger) Warn(msg string, kv ...any)  { s.log(s.l.Warning(), msg, kv) }
func (s *slogLogger) Error(msg string, kv ...any) { s.log(s.l.Err(), msg, kv) }
