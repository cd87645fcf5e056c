// Package pagination parses skip/take query parameters for offset listings.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/matcha-bridge/api/internal/domain"
)

var (
	ErrInvalidSkip = errors.New("pagination: invalid skip")
	ErrInvalidTake = errors.New("pagination: invalid take")
)

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultTake int
	MaxTake     int
}

// FromRequest parses skip and take from the request query string.
func FromRequest(r *http.Request, opts Options) (domain.Offset, error) {
	if r == nil {
		return domain.Offset{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads skip and take. take above the maximum is clamped; negative or non-numeric values
// are rejected so clients notice typos.
func Parse(values url.Values, opts Options) (domain.Offset, error) {
	defaultTake := opts.DefaultTake
	if defaultTake <= 0 {
		defaultTake = domain.DefaultPageSize
	}
	maxTake := opts.MaxTake
	if maxTake <= 0 {
		maxTake = domain.MaxPageSize
	}
	if defaultTake > maxTake {
		defaultTake = maxTake
	}

	skip, err := parseNonNegative(values.Get("skip"), 0)
	if err != nil {
		return domain.Offset{}, fmt.Errorf("%w: %v", ErrInvalidSkip, err)
	}
	take, err := parseNonNegative(values.Get("take"), defaultTake)
	if err != nil {
		return domain.Offset{}, fmt.Errorf("%w: %v", ErrInvalidTake, err)
	}
	if take == 0 {
		return domain.Offset{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidTake)
	}
	if take > maxTake {
		take = maxTake
	}
	return domain.Offset{Skip: skip, Take: take}, nil
}

func parseNonNegative(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("%d is negative", value)
	}
	return value, nil
}
