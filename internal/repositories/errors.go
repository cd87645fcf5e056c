package repositories

import "fmt"

// StoreErrorCode enumerates failure categories shared by the memory and SQL backends.
type StoreErrorCode string

const (
	// StoreErrorUnknown represents an unclassified failure.
	StoreErrorUnknown StoreErrorCode = "store_unknown"
	// StoreErrorNotFound indicates the requested record does not exist.
	StoreErrorNotFound StoreErrorCode = "store_not_found"
	// StoreErrorConflict indicates a uniqueness or concurrency violation.
	StoreErrorConflict StoreErrorCode = "store_conflict"
	// StoreErrorUnavailable indicates the backend could not be reached.
	StoreErrorUnavailable StoreErrorCode = "store_unavailable"
)

// StoreError implements RepositoryError with a machine readable code.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the record was missing.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Code == StoreErrorNotFound }

// IsConflict reports whether the write conflicted with existing state.
func (e *StoreError) IsConflict() bool { return e != nil && e.Code == StoreErrorConflict }

// IsUnavailable reports whether the backend is temporarily unreachable.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// NewStoreError constructs a typed store error.
func NewStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{Op: op, Code: code, Message: message, Err: err}
}
