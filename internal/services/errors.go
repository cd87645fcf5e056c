package services

import "fmt"

// FieldError names the request field that failed validation. It unwraps to the owning
// service's invalid-input sentinel, so errors.Is keeps working for callers that only
// care about the category.
type FieldError struct {
	Field  string
	Reason string
	kind   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.kind }

func invalidField(kind error, field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), kind: kind}
}
