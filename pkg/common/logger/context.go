package logger

import (
	"context"
	"sync"
)

// LoggerContext accumulates attributes over the course of an operation so
// later records automatically carry everything learned earlier. It is safe
// for concurrent use by the goroutines of a single operation.
type LoggerContext struct {
	mu    sync.RWMutex
	log   *Logger
	attrs []any
}

// NewLoggerContext constructs a LoggerContext around an existing logger.
func NewLoggerContext(log *Logger) *LoggerContext {
	return &LoggerContext{log: log}
}

// Add appends key/value pairs that will be included in every subsequent record.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.attrs = append(lc.attrs, args...)
}

// Debug logs at LevelDebug with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	lc.log.Debugc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Info logs at LevelInfo with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	lc.log.Infoc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Warn logs at LevelWarn with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	lc.log.Warnc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Error logs at LevelError with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	lc.log.Errorc(ctx, 4, msg, append(lc.attrs, args...)...)
}
