// Package corelog provides the structured logging implementations wired
// into core.Service via core.WithLogger. The interface it satisfies is
// defined by the core package itself (Debug/Info/Warn/Error with variadic
// key-value pairs); this package only supplies concrete backends.
package corelog

import "go.uber.org/zap"

// Logger mirrors core.Logger so this package has no import-cycle dependency
// on internal/core. Any value satisfying this interface can be passed to
// core.WithLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Noop discards every log line. core.Service does not use it by default;
// with no logger configured it falls back to core's own no-op logger.
type Noop struct{}

func (Noop) Debug(string, ...any) {}
func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}

// Zap wraps a go.uber.org/zap.SugaredLogger, translating the variadic
// key-value pairs into zap's structured fields via SugaredLogger's
// "w" (with) calling convention.
type Zap struct {
	sugar *zap.SugaredLogger
}

// NewZapProduction builds a Zap logger using zap's production preset
// (JSON encoding, info level and above, stacktraces on error).
func NewZapProduction() (*Zap, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Zap{sugar: logger.Sugar()}, nil
}

// NewZapDevelopment builds a Zap logger using zap's development preset
// (console encoding, debug level and above, caller annotations).
func NewZapDevelopment() (*Zap, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Zap{sugar: logger.Sugar()}, nil
}

// NewZap wraps an already-constructed zap.Logger, for callers that need
// custom cores or sinks.
func NewZap(logger *zap.Logger) *Zap {
	return &Zap{sugar: logger.Sugar()}
}

func (z *Zap) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *Zap) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *Zap) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *Zap) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Sync flushes any buffered log entries. Callers should defer this after
// constructing a Zap logger at process startup.
func (z *Zap) Sync() error {
	return z.sugar.Sync()
}
