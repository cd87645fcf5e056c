package domain

import (
	"time"
)

const (
	// DefaultPageSize is applied when a list request omits take.
	DefaultPageSize = 20
	// MaxPageSize caps take for offset listings.
	MaxPageSize = 100
)

// Offset describes skip/take pagination inputs for list operations.
type Offset struct {
	Skip int
	Take int
}

// Normalise clamps the offset into the supported range.
func (o Offset) Normalise() Offset {
	if o.Skip < 0 {
		o.Skip = 0
	}
	if o.Take <= 0 {
		o.Take = DefaultPageSize
	}
	if o.Take > MaxPageSize {
		o.Take = MaxPageSize
	}
	return o
}

// Page wraps an offset-paginated result set with its totals.
type Page[T any] struct {
	Data      []T
	Total     int
	Page      int
	PageCount int
	Skip      int
	Take      int
}

// NewPage computes page metadata for the supplied slice of results.
func NewPage[T any](data []T, total int, offset Offset) Page[T] {
	offset = offset.Normalise()
	if data == nil {
		data = []T{}
	}
	pageCount := 0
	if total > 0 {
		pageCount = (total + offset.Take - 1) / offset.Take
	}
	return Page[T]{
		Data:      data,
		Total:     total,
		Page:      offset.Skip/offset.Take + 1,
		PageCount: pageCount,
		Skip:      offset.Skip,
		Take:      offset.Take,
	}
}

// SlicePage applies the offset to an already filtered, ordered slice.
func SlicePage[T any](items []T, offset Offset) Page[T] {
	offset = offset.Normalise()
	total := len(items)
	start := offset.Skip
	if start > total {
		start = total
	}
	end := start + offset.Take
	if end > total {
		end = total
	}
	window := make([]T, end-start)
	copy(window, items[start:end])
	return NewPage(window, total, offset)
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but the service keeps serving.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of a single dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
