package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/matcha-bridge/api/internal/platform/auth"
	"github.com/matcha-bridge/api/internal/platform/httpx"
)

const (
	defaultLimiterIdleTTL = 10 * time.Minute
	anonymousLimiterKey   = "anonymous"
)

// RateLimiter throttles callers with one token bucket per key. Authenticated callers are keyed
// by UID and get their own per-minute budget; everyone else is keyed by client IP.
type RateLimiter struct {
	anonymous     rate.Limit
	authenticated rate.Limit
	burst         int
	idleTTL       time.Duration
	clock         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*limiterEntry
	lastPrune time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterOption customises a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides the clock, mainly for tests.
func WithRateLimiterClock(clock func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithRateLimiterIdleTTL sets how long an unused bucket is retained.
func WithRateLimiterIdleTTL(ttl time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

// NewRateLimiter returns nil when both budgets are disabled.
func NewRateLimiter(perMinute, authenticatedPerMinute, burst int, opts ...RateLimiterOption) *RateLimiter {
	if perMinute <= 0 && authenticatedPerMinute <= 0 {
		return nil
	}
	if authenticatedPerMinute <= 0 {
		authenticatedPerMinute = perMinute
	}
	if perMinute <= 0 {
		perMinute = authenticatedPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	l := &RateLimiter{
		anonymous:     perMinuteLimit(perMinute),
		authenticated: perMinuteLimit(authenticatedPerMinute),
		burst:         burst,
		idleTTL:       defaultLimiterIdleTTL,
		clock:         time.Now,
		buckets:       make(map[string]*limiterEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func perMinuteLimit(n int) rate.Limit {
	return rate.Limit(float64(n) / 60)
}

// Allow consumes a token for key and reports whether the request may proceed, plus how long the
// caller should wait otherwise.
func (l *RateLimiter) Allow(key string, authenticated bool) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = anonymousLimiterKey
	}
	limit := l.anonymous
	bucketKey := "ip:" + key
	if authenticated {
		limit = l.authenticated
		bucketKey = "uid:" + key
	}

	now := l.clock()
	l.mu.Lock()
	entry, ok := l.buckets[bucketKey]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, l.burst)}
		l.buckets[bucketKey] = entry
	}
	entry.lastSeen = now
	l.pruneIdleLocked(now)
	l.mu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *RateLimiter) pruneIdleLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.idleTTL {
		return
	}
	l.lastPrune = now
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// Middleware answers 429 with Retry-After once the caller's bucket is empty. It expects any
// authentication middleware to have run already.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, authenticated := clientIP(r), false
		if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.UID) != "" {
			key, authenticated = identity.UID, true
		}
		allowed, wait := l.Allow(key, authenticated)
		if !allowed {
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			apiErr := httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests)
			httpx.WriteError(r.Context(), w, apiErr.WithDetails(map[string]any{"retryAfterSeconds": seconds}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
