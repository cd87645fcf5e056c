// Package postgres implements the repositories on PostgreSQL through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/matcha-bridge/api/internal/repositories"
)

//go:embed schema.sql
var schemaSQL string

// Registry wires the PostgreSQL repositories around a shared pool.
type Registry struct {
	db          *sql.DB
	rules       *ComplianceRuleRepository
	evaluations *ComplianceEvaluationRepository
	rfqs        *RFQRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry takes ownership of db; Close releases it.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: db is required")
	}
	return &Registry{
		db:          db,
		rules:       &ComplianceRuleRepository{db: db},
		evaluations: &ComplianceEvaluationRepository{db: db},
		rfqs:        &RFQRepository{db: db},
	}, nil
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return wrapError("postgres.migrate", err)
	}
	return nil
}

func (r *Registry) ComplianceRules() repositories.ComplianceRuleRepository { return r.rules }

func (r *Registry) ComplianceEvaluations() repositories.ComplianceEvaluationRepository {
	return r.evaluations
}

func (r *Registry) RFQs() repositories.RFQRepository { return r.rfqs }

// RFQStore exposes the concrete RFQ repository so fixtures can be written.
func (r *Registry) RFQStore() *RFQRepository { return r.rfqs }

func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("postgres.ping", r.db.PingContext(ctx))
}

func (r *Registry) Close(context.Context) error {
	return r.db.Close()
}

// wrapError classifies driver failures into repository semantics. Context errors pass through.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.NewStoreError(op, repositories.StoreErrorNotFound, "record not found", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "23":
			return repositories.NewStoreError(op, repositories.StoreErrorConflict, pqErr.Code.Name(), err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, pqErr.Code.Name(), err)
		}
		return repositories.NewStoreError(op, repositories.StoreErrorUnknown, pqErr.Code.Name(), err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, "database unreachable", err)
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnknown, "query failed", err)
}

func notFound(op, id string) error {
	return repositories.NewStoreError(op, repositories.StoreErrorNotFound, fmt.Sprintf("record %s not found", id), nil)
}

func nullableText(value string) sql.NullString {
	trimmed := strings.TrimSpace(value)
	return sql.NullString{String: trimmed, Valid: trimmed != ""}
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func textArray(values []string) any {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}
