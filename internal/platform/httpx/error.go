// Package httpx renders the JSON error envelope shared by every API route:
//
//	{"error": "invalid_input", "message": "...", "status": 400, "request_id": "...", "trace_id": "...", "field": "weightKg"}
//
// Details are merged into the top level but can never replace the envelope keys.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/matcha-bridge/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxIDLength      = 80
	maxTraceIDLength = 64
)

var envelopeKeys = map[string]struct{}{
	"error":      {},
	"message":    {},
	"status":     {},
	"request_id": {},
	"trace_id":   {},
}

// Error is a machine-readable error code plus a human message and HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLength),
		Message: clean(message, maxMessageLength),
		Status:  status,
	}
}

// WithDetails returns a copy of e carrying extra top-level keys. Envelope keys are dropped.
func (e Error) WithDetails(details map[string]any) Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		if _, reserved := envelopeKeys[k]; reserved {
			continue
		}
		merged[k] = v
	}
	if len(merged) == 0 {
		return e
	}
	e.Details = merged
	return e
}

// WithField names the request field responsible for a validation error.
func (e Error) WithField(field string) Error {
	field = clean(field, maxCodeLength)
	if field == "" {
		return e
	}
	return e.WithDetails(map[string]any{"field": field})
}

// WriteError writes err as JSON, stamping the chi request id and the trace id from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if id := clean(middleware.GetReqID(ctx), maxIDLength); id != "" {
		payload["request_id"] = id
	}
	if id := clean(requestctx.TraceID(ctx), maxTraceIDLength); id != "" {
		payload["trace_id"] = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clean flattens line breaks and truncates to limit bytes, so header-like values cannot be
// split across log lines.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
