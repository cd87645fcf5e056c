package repositories

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	domain "github.com/matcha-bridge/api/internal/domain"
)

var categoryFolder = cases.Fold()

// MatchesRuleFilter applies the listing filter to a single rule. Backends that cannot express
// substring matching natively filter with this after fetching.
func MatchesRuleFilter(rule domain.ComplianceRule, filter ComplianceRuleFilter) bool {
	if filter.ActiveOnly && !rule.IsActive {
		return false
	}
	if country := strings.TrimSpace(filter.DestinationCountry); country != "" && rule.DestinationCountry != strings.ToUpper(country) {
		return false
	}
	if category := strings.TrimSpace(filter.ProductCategory); category != "" {
		if !strings.Contains(categoryFolder.String(rule.ProductCategory), categoryFolder.String(category)) {
			return false
		}
	}
	return true
}

// SortRulesForEvaluation orders rules oldest first, breaking ties by ID.
func SortRulesForEvaluation(rules []domain.ComplianceRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

// SortRulesNewestFirst orders rules for admin listings.
func SortRulesNewestFirst(rules []domain.ComplianceRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.After(rules[j].CreatedAt)
		}
		return rules[i].ID > rules[j].ID
	})
}

// SortEvaluationsNewestFirst orders audit records reverse chronologically.
func SortEvaluationsNewestFirst(evaluations []domain.ComplianceEvaluation) {
	sort.SliceStable(evaluations, func(i, j int) bool {
		if !evaluations[i].CreatedAt.Equal(evaluations[j].CreatedAt) {
			return evaluations[i].CreatedAt.After(evaluations[j].CreatedAt)
		}
		return evaluations[i].ID > evaluations[j].ID
	})
}

// MatchesReference reports whether the evaluation is keyed to ref.
func MatchesReference(evaluation domain.ComplianceEvaluation, ref domain.EvaluationReference) bool {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return false
	}
	switch ref.Kind {
	case domain.EvaluationReferenceRFQ:
		return evaluation.RFQID == id
	case domain.EvaluationReferenceQuote:
		return evaluation.QuoteID == id
	case domain.EvaluationReferenceOrder:
		return evaluation.OrderID == id
	default:
		return false
	}
}
