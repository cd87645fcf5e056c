package services

import (
	"context"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	ComplianceRule             = domain.ComplianceRule
	ComplianceLevel            = domain.ComplianceLevel
	ComplianceEvaluation       = domain.ComplianceEvaluation
	ComplianceEvaluationInput  = domain.ComplianceEvaluationInput
	ComplianceEvaluationResult = domain.ComplianceEvaluationResult
	EvaluationReference        = domain.EvaluationReference
	EstimateParams             = domain.EstimateParams
	ShippingEstimate           = domain.ShippingEstimate
	ShippingQuote              = domain.ShippingQuote
	CarrierDescriptor          = domain.CarrierDescriptor
	RFQWeight                  = domain.RFQWeight
	SystemHealthReport         = domain.SystemHealthReport
	ComplianceRuleFilter       = repositories.ComplianceRuleFilter
)

// ComplianceService evaluates shipments against rules, manages rules, and keeps the evaluation audit trail.
type ComplianceService interface {
	Evaluate(ctx context.Context, input ComplianceEvaluationInput) (ComplianceEvaluationResult, error)

	CreateRule(ctx context.Context, cmd CreateComplianceRuleCommand) (ComplianceRule, error)
	UpdateRule(ctx context.Context, cmd UpdateComplianceRuleCommand) (ComplianceRule, error)
	DeleteRule(ctx context.Context, cmd DeleteComplianceRuleCommand) (ComplianceRule, error)
	GetRule(ctx context.Context, ruleID string) (ComplianceRule, error)
	ListRules(ctx context.Context, filter ComplianceRuleFilter) (domain.Page[ComplianceRule], error)

	SaveEvaluation(ctx context.Context, cmd SaveEvaluationCommand) (ComplianceEvaluation, error)
	ListEvaluationsByRFQ(ctx context.Context, rfqID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error)
	ListEvaluationsByQuote(ctx context.Context, quoteID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error)
	ListEvaluationsByOrder(ctx context.Context, orderID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error)
}

// ShippingService validates estimate requests and derives shipment weight from RFQs.
type ShippingService interface {
	Estimate(ctx context.Context, params EstimateParams) (ShippingQuote, error)
	CalculateRFQWeight(ctx context.Context, rfqID string) (RFQWeight, error)
	EstimateForRFQ(ctx context.Context, rfqID string, params EstimateParams) (ShippingQuote, error)
	Carriers() []CarrierDescriptor
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CreateComplianceRuleCommand carries the fields of a new rule.
type CreateComplianceRuleCommand struct {
	DestinationCountry     string
	ProductCategory        string
	MinDeclaredValueUSD    *float64
	MinWeightKg            *float64
	MaxWeightKg            *float64
	RequiredCertifications []string
	RequiredDocs           []string
	Warnings               []string
	DisclaimerText         string
	// IsActive defaults to true when nil.
	IsActive *bool
	ActorID  string
}

// UpdateComplianceRuleCommand applies a partial update; nil fields are left unchanged.
// Clear* flags remove an optional threshold.
type UpdateComplianceRuleCommand struct {
	RuleID                 string
	DestinationCountry     *string
	ProductCategory        *string
	MinDeclaredValueUSD    *float64
	MinWeightKg            *float64
	MaxWeightKg            *float64
	ClearMinDeclaredValue  bool
	ClearMinWeight         bool
	ClearMaxWeight         bool
	RequiredCertifications *[]string
	RequiredDocs           *[]string
	Warnings               *[]string
	DisclaimerText         *string
	IsActive               *bool
	ActorID                string
}

// DeleteComplianceRuleCommand soft deletes a rule.
type DeleteComplianceRuleCommand struct {
	RuleID  string
	ActorID string
}

// SaveEvaluationCommand persists an audit snapshot. When Result is nil the input is evaluated first.
type SaveEvaluationCommand struct {
	RFQID       string
	QuoteID     string
	OrderID     string
	Input       ComplianceEvaluationInput
	Result      *ComplianceEvaluationResult
	EvaluatedBy string
}

// EvaluationPublisher emits an event for every saved evaluation.
type EvaluationPublisher interface {
	PublishEvaluationSaved(ctx context.Context, evaluation ComplianceEvaluation) error
}
