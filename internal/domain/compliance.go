package domain

import "time"

// ComplianceLevel grades how much attention a shipment needs before export.
type ComplianceLevel string

const (
	ComplianceLevelLow    ComplianceLevel = "LOW"
	ComplianceLevelMedium ComplianceLevel = "MEDIUM"
	ComplianceLevelHigh   ComplianceLevel = "HIGH"
)

// ComplianceRule captures import requirements for a destination country and product category.
// Optional thresholds are nil when the rule does not constrain that dimension.
type ComplianceRule struct {
	ID                     string
	DestinationCountry     string
	ProductCategory        string
	MinDeclaredValueUSD    *float64
	MinWeightKg            *float64
	MaxWeightKg            *float64
	RequiredCertifications []string
	RequiredDocs           []string
	Warnings               []string
	DisclaimerText         string
	IsActive               bool
	CreatedBy              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Matches reports whether the declared shipment passes every threshold configured on the rule.
// Bounds are inclusive.
func (r ComplianceRule) Matches(declaredValueUSD, weightKg float64) bool {
	if r.MinDeclaredValueUSD != nil && declaredValueUSD < *r.MinDeclaredValueUSD {
		return false
	}
	if r.MinWeightKg != nil && weightKg < *r.MinWeightKg {
		return false
	}
	if r.MaxWeightKg != nil && weightKg > *r.MaxWeightKg {
		return false
	}
	return true
}

// ComplianceEvaluationInput describes the shipment being checked.
type ComplianceEvaluationInput struct {
	DestinationCountry string
	ProductCategory    string
	DeclaredValueUSD   float64
	WeightKg           float64
	Certifications     []string
}

// ComplianceEvaluationResult aggregates requirements across matched rules.
type ComplianceEvaluationResult struct {
	RequiredDocs          []string
	Warnings              []string
	Flags                 []string
	DisclaimerText        string
	AppliedRuleIDs        []string
	MissingCertifications []string
	ComplianceLevel       ComplianceLevel
}

// ComplianceEvaluation is the persisted audit snapshot of an evaluation.
type ComplianceEvaluation struct {
	ID          string
	RFQID       string
	QuoteID     string
	OrderID     string
	Input       ComplianceEvaluationInput
	Result      ComplianceEvaluationResult
	EvaluatedBy string
	CreatedAt   time.Time
}

// EvaluationReferenceKind selects which business document an audit lookup is keyed on.
type EvaluationReferenceKind string

const (
	EvaluationReferenceRFQ   EvaluationReferenceKind = "rfq"
	EvaluationReferenceQuote EvaluationReferenceKind = "quote"
	EvaluationReferenceOrder EvaluationReferenceKind = "order"
)

// EvaluationReference identifies the RFQ, quote, or order an evaluation belongs to.
type EvaluationReference struct {
	Kind EvaluationReferenceKind
	ID   string
}
