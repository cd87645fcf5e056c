package observability

import (
	"net"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
)

const (
	defaultStringLimit = 256
	routeLimit         = 180
	addrLimit          = 64
	unmatchedRoute     = "unmatched"
	otherMethod        = "OTHER"
)

// Methods the router serves. Anything else shares one metric label.
var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// sanitizeString strips control runes, including line breaks, and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	value = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

// SanitizeRoute bounds route patterns and paths written to logs and span attributes.
func SanitizeRoute(route string) string {
	route = sanitizeString(route, routeLimit)
	if route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod upper-cases method and collapses non-standard verbs to "OTHER".
func SanitizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return otherMethod
}

// routePattern reads the matched chi pattern. Unmatched URLs share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return SanitizeRoute(pattern)
		}
	}
	return unmatchedRoute
}

// realIP is the peer host without port. Forwarded headers are left to chi's RealIP middleware.
func realIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, addrLimit)
}
