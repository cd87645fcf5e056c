// Package requestctx carries the request-scoped logger and trace metadata between middleware,
// handlers and services.
package requestctx

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
)

var nop = zap.NewNop()

// TraceInfo is the trace a request belongs to, as extracted by the trace middleware.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// LogResource formats the Cloud Logging trace field, or "" when the project or trace is unknown.
func (t TraceInfo) LogResource() string {
	if t.ProjectID == "" || t.TraceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", t.ProjectID, t.TraceID)
}

// WithLogger returns ctx carrying logger. A nil logger is stored as a no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom reports the logger stored on ctx, if any.
func LoggerFrom(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok || logger == nil || logger == nop {
		return nil, false
	}
	return logger, true
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := LoggerFrom(ctx); ok {
		return logger
	}
	return nop
}

// LoggerOr returns the request logger, falling back to fallback when none was injected.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := LoggerFrom(ctx); ok {
		return logger
	}
	if fallback == nil {
		return nop
	}
	return fallback
}

// WithTrace returns ctx carrying info.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace reports the trace stored on ctx, if any.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID is the trace id on ctx or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
