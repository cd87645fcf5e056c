package repositories

import (
	"context"

	domain "github.com/matcha-bridge/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	ComplianceRules() ComplianceRuleRepository
	ComplianceEvaluations() ComplianceEvaluationRepository
	RFQs() RFQRepository
	Ping(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ComplianceRuleFilter narrows admin rule listings.
type ComplianceRuleFilter struct {
	Offset             domain.Offset
	DestinationCountry string
	// ProductCategory matches case-insensitively as a substring.
	ProductCategory string
	ActiveOnly      bool
}

// ComplianceRuleRepository persists compliance rules.
type ComplianceRuleRepository interface {
	Insert(ctx context.Context, rule domain.ComplianceRule) error
	Update(ctx context.Context, rule domain.ComplianceRule) error
	FindByID(ctx context.Context, ruleID string) (domain.ComplianceRule, error)
	// FindActive returns active rules for the exact country and category ordered by CreatedAt then ID.
	FindActive(ctx context.Context, destinationCountry, productCategory string) ([]domain.ComplianceRule, error)
	// List returns rules newest first.
	List(ctx context.Context, filter ComplianceRuleFilter) (domain.Page[domain.ComplianceRule], error)
}

// ComplianceEvaluationRepository stores the evaluation audit trail.
type ComplianceEvaluationRepository interface {
	Insert(ctx context.Context, evaluation domain.ComplianceEvaluation) error
	// ListByReference returns evaluations for the reference newest first.
	ListByReference(ctx context.Context, ref domain.EvaluationReference, offset domain.Offset) (domain.Page[domain.ComplianceEvaluation], error)
}

// RFQRepository reads RFQs with their line items and SKU weights resolved.
type RFQRepository interface {
	FindByID(ctx context.Context, rfqID string) (domain.RFQ, error)
}

// HealthRepository aggregates dependency checks for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
