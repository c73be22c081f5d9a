// Package logging wraps zap with the context-aware call shape the rest of
// the gateway uses: logging.Infof(ctx, "...", args...). The request id is
// pulled out of ctx (if present, via ctxkey.RequestID-style values set by
// httpapi middleware) and attached to every line.
package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	base    *zap.SugaredLogger
	baseMu  sync.RWMutex
	initOne sync.Once
)

type requestIDKey struct{}

// WithRequestID returns a context carrying id for later log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Init configures the global logger. debug=true selects zap's development
// encoder (human readable, colorized level); otherwise the production JSON
// encoder is used.
func Init(debug bool) {
	initOne.Do(func() {
		var cfg zap.Config
		if debug {
			cfg = zap.NewDevelopmentConfig()
		} else {
			cfg = zap.NewProductionConfig()
		}
		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Logging must never prevent startup; fall back to a no-op core.
			logger = zap.NewNop()
			_ = err
		}
		baseMu.Lock()
		base = logger.Sugar()
		baseMu.Unlock()
	})
}

func logger() *zap.SugaredLogger {
	baseMu.RLock()
	l := base
	baseMu.RUnlock()
	if l != nil {
		return l
	}
	// Safety net for tests/binaries that never called Init.
	Init(os.Getenv("GATEWAY_DEBUG") == "true")
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

func withReqID(ctx context.Context) *zap.SugaredLogger {
	l := logger()
	if id := requestIDFrom(ctx); id != "" {
		return l.With("request_id", id)
	}
	return l
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	withReqID(ctx).Debugf(format, args...)
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	withReqID(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	withReqID(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	withReqID(ctx).Errorf(format, args...)
}

// SysLog and SysLogf log outside of any request context (startup, shutdown,
// background loops).
func SysLog(msg string) {
	logger().Info(msg)
}

func SysLogf(format string, args ...interface{}) {
	logger().Infof(format, args...)
}

func SysError(msg string) {
	logger().Error(msg)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	_ = logger().Sync()
}
