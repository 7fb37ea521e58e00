// Package logging wraps zap with a process-global logger so packages that
// have no business constructing their own sinks can still log structured
// fields without threading a *zap.Logger through every constructor.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	log = l
}

// SetLogger replaces the process-global logger. Hosts embedding netplay in a
// binary that already configures zap should call this once at startup.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

// Logger is a scoped logger carrying a fixed set of fields, for per-connection
// or per-component context (e.g. peer address, channel name).
type Logger struct {
	zl *zap.Logger
}

// With returns a Logger that prefixes every call with the given fields.
func With(fields ...zap.Field) *Logger {
	return &Logger{zl: current().With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }
