package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallbacks(t *testing.T) {
	fallback := zap.NewExample()

	if _, ok := LoggerFrom(context.Background()); ok {
		t.Fatalf("expected no logger on empty context")
	}
	if got := LoggerOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	if got := LoggerOr(WithLogger(context.Background(), nil), fallback); got != fallback {
		t.Fatalf("expected nil logger to be treated as absent")
	}

	injected := zap.NewExample().Named("http")
	ctx := WithLogger(context.Background(), injected)
	if got := LoggerOr(ctx, fallback); got != injected {
		t.Fatalf("expected injected logger preferred")
	}
	if got := Logger(ctx); got != injected {
		t.Fatalf("expected injected logger")
	}
}

func TestTraceLogResource(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc123", ProjectID: "matcha-prod"})
	info, ok := Trace(ctx)
	if !ok {
		t.Fatalf("expected trace on context")
	}
	if got := info.LogResource(); got != "projects/matcha-prod/traces/abc123" {
		t.Fatalf("unexpected log resource %q", got)
	}
	if got := (TraceInfo{TraceID: "abc123"}).LogResource(); got != "" {
		t.Fatalf("expected empty resource without project, got %q", got)
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id on empty context")
	}
}
