package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/matcha-bridge/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if got := spanCtx.TraceID().String(); got != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", got)
	}
	if got := spanCtx.SpanID().String(); got != "0000000000000001" {
		t.Fatalf("unexpected span id %s", got)
	}
	if !spanCtx.IsSampled() || !spanCtx.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	if got := formatCloudTraceHeader(spanCtx); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("expected header round trip, got %s", got)
	}
}

func TestParseCloudTraceContextRejectsMalformed(t *testing.T) {
	for _, header := range []string{
		"",
		"not-a-trace",
		"zz5445aa7843bc8bf206b12000100000/1",
		"105445aa7843bc8bf206b12000100000/abc",
		"105445aa7843bc8bf206b12000100000/0;o=1",
	} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewarePrefersTraceparent(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("matcha-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shipping/carriers", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if captured.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected traceparent trace id, got %q", captured.TraceID)
	}
	if captured.ProjectID != "matcha-prod" || !captured.Sampled {
		t.Fatalf("unexpected trace info %+v", captured)
	}
	if rr.Header().Get(cloudTraceHeader) == "" {
		t.Fatalf("expected trace header echoed on response")
	}
}

func TestTraceMiddlewareFallsBackToCloudTrace(t *testing.T) {
	var captured trace.SpanContext
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected cloud trace id, got %s", captured.TraceID())
	}
	if captured.IsSampled() {
		t.Fatalf("expected unsampled span context")
	}
}

func TestTraceMiddlewareWithoutIncomingTrace(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("matcha-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if captured.TraceID != "" {
		t.Fatalf("expected empty trace id without incoming context, got %q", captured.TraceID)
	}
	if rr.Header().Get(cloudTraceHeader) != "" {
		t.Fatalf("expected no trace header")
	}
}
