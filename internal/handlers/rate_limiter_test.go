package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matcha-bridge/api/internal/platform/auth"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestRateLimiterAllowRefillsOverTime(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(60, 120, 2, WithRateLimiterClock(clock.Now))

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("10.0.0.1", false); !ok {
			t.Fatalf("expected burst request %d allowed", i)
		}
	}
	ok, wait := limiter.Allow("10.0.0.1", false)
	if ok {
		t.Fatalf("expected third request denied")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("expected wait within one second, got %s", wait)
	}

	if ok, _ := limiter.Allow("10.0.0.2", false); !ok {
		t.Fatalf("expected separate bucket per ip")
	}

	clock.now = clock.now.Add(time.Second)
	if ok, _ := limiter.Allow("10.0.0.1", false); !ok {
		t.Fatalf("expected token refilled after one second")
	}
}

func TestRateLimiterAuthenticatedBudgetIsSeparate(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(60, 600, 1, WithRateLimiterClock(clock.Now))

	if ok, _ := limiter.Allow("same", false); !ok {
		t.Fatalf("expected anonymous request allowed")
	}
	if ok, _ := limiter.Allow("same", true); !ok {
		t.Fatalf("expected uid bucket independent of ip bucket")
	}

	clock.now = clock.now.Add(200 * time.Millisecond)
	if ok, _ := limiter.Allow("same", true); !ok {
		t.Fatalf("expected authenticated bucket refilled at 10/s")
	}
	if ok, _ := limiter.Allow("same", false); ok {
		t.Fatalf("expected anonymous bucket still empty")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	if limiter := NewRateLimiter(0, 0, 10); limiter != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
	var limiter *RateLimiter
	if ok, _ := limiter.Allow("any", false); !ok {
		t.Fatalf("expected nil limiter to allow")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(30, 30, 1, WithRateLimiterClock(clock.Now))
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(identity *auth.Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/estimate", nil)
		req.RemoteAddr = "192.0.2.10:5123"
		if identity != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), identity))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected first request allowed, got %d", rr.Code)
	}
	rr := send(nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["error"] != "rate_limited" {
		t.Fatalf("expected rate_limited error, got %v", body["error"])
	}
	if body["retryAfterSeconds"] != float64(2) {
		t.Fatalf("expected retryAfterSeconds 2, got %v", body["retryAfterSeconds"])
	}

	if rr := send(&auth.Identity{UID: "buyer-1"}); rr.Code != http.StatusNoContent {
		t.Fatalf("expected authenticated caller keyed by uid, got %d", rr.Code)
	}
}

func TestRateLimiterPrunesIdleBuckets(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(60, 60, 1, WithRateLimiterClock(clock.Now), WithRateLimiterIdleTTL(time.Minute))

	limiter.Allow("a", false)
	limiter.Allow("b", false)
	clock.now = clock.now.Add(2 * time.Minute)
	limiter.Allow("c", false)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 1 {
		t.Fatalf("expected idle buckets pruned, got %d", len(limiter.buckets))
	}
}
