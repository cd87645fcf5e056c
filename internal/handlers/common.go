package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matcha-bridge/api/internal/platform/httpx"
	"github.com/matcha-bridge/api/internal/services"
)

const maxJSONBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSONBody reads a bounded body into dst, rejecting unknown fields and trailing data.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	data, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	if decoder.More() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must contain a single JSON object", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeInvalidInput(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(r.Context(), w, invalidInputError(err))
}

// invalidInputError carries the offending field when the service reported one.
func invalidInputError(err error) httpx.Error {
	apiErr := httpx.NewError("invalid_input", err.Error(), http.StatusBadRequest)
	var fieldErr *services.FieldError
	if errors.As(err, &fieldErr) {
		apiErr = apiErr.WithField(fieldErr.Field)
	}
	return apiErr
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseBoolQuery(raw string) (bool, bool, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return false, false, nil
	case "true", "1", "yes":
		return true, true, nil
	case "false", "0", "no":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// HandlerOption customises a handler group.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	limiter *RateLimiter
}

// WithRateLimiter throttles the group after authentication has attached an identity.
func WithRateLimiter(limiter *RateLimiter) HandlerOption {
	return func(o *handlerOptions) {
		o.limiter = limiter
	}
}

func applyHandlerOptions(opts []HandlerOption) handlerOptions {
	var options handlerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
