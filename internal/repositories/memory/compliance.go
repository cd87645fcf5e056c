package memory

import (
	"context"
	"strings"
	"sync"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

// ComplianceRuleRepository keeps rules in a map guarded by a RWMutex.
type ComplianceRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]domain.ComplianceRule
}

var _ repositories.ComplianceRuleRepository = (*ComplianceRuleRepository)(nil)

// NewComplianceRuleRepository constructs an empty rule store.
func NewComplianceRuleRepository() *ComplianceRuleRepository {
	return &ComplianceRuleRepository{rules: make(map[string]domain.ComplianceRule)}
}

func (r *ComplianceRuleRepository) Insert(ctx context.Context, rule domain.ComplianceRule) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return conflict("memory.complianceRules.insert", rule.ID)
	}
	r.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (r *ComplianceRuleRepository) Update(ctx context.Context, rule domain.ComplianceRule) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; !exists {
		return notFound("memory.complianceRules.update", rule.ID)
	}
	r.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (r *ComplianceRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.ComplianceRule, error) {
	if err := contextErr(ctx); err != nil {
		return domain.ComplianceRule{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[strings.TrimSpace(ruleID)]
	if !ok {
		return domain.ComplianceRule{}, notFound("memory.complianceRules.find", ruleID)
	}
	return cloneRule(rule), nil
}

func (r *ComplianceRuleRepository) FindActive(ctx context.Context, destinationCountry, productCategory string) ([]domain.ComplianceRule, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]domain.ComplianceRule, 0)
	for _, rule := range r.rules {
		if rule.IsActive && rule.DestinationCountry == destinationCountry && rule.ProductCategory == productCategory {
			matched = append(matched, cloneRule(rule))
		}
	}
	r.mu.RUnlock()

	repositories.SortRulesForEvaluation(matched)
	return matched, nil
}

func (r *ComplianceRuleRepository) List(ctx context.Context, filter repositories.ComplianceRuleFilter) (domain.Page[domain.ComplianceRule], error) {
	if err := contextErr(ctx); err != nil {
		return domain.Page[domain.ComplianceRule]{}, err
	}
	r.mu.RLock()
	matched := make([]domain.ComplianceRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if repositories.MatchesRuleFilter(rule, filter) {
			matched = append(matched, cloneRule(rule))
		}
	}
	r.mu.RUnlock()

	repositories.SortRulesNewestFirst(matched)
	return domain.SlicePage(matched, filter.Offset), nil
}

// ComplianceEvaluationRepository keeps the audit trail in insertion order.
type ComplianceEvaluationRepository struct {
	mu          sync.RWMutex
	evaluations []domain.ComplianceEvaluation
	ids         map[string]struct{}
}

var _ repositories.ComplianceEvaluationRepository = (*ComplianceEvaluationRepository)(nil)

// NewComplianceEvaluationRepository constructs an empty audit store.
func NewComplianceEvaluationRepository() *ComplianceEvaluationRepository {
	return &ComplianceEvaluationRepository{ids: make(map[string]struct{})}
}

func (r *ComplianceEvaluationRepository) Insert(ctx context.Context, evaluation domain.ComplianceEvaluation) error {
	if err := contextErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ids[evaluation.ID]; exists {
		return conflict("memory.complianceEvaluations.insert", evaluation.ID)
	}
	r.ids[evaluation.ID] = struct{}{}
	r.evaluations = append(r.evaluations, cloneEvaluation(evaluation))
	return nil
}

func (r *ComplianceEvaluationRepository) ListByReference(ctx context.Context, ref domain.EvaluationReference, offset domain.Offset) (domain.Page[domain.ComplianceEvaluation], error) {
	if err := contextErr(ctx); err != nil {
		return domain.Page[domain.ComplianceEvaluation]{}, err
	}
	r.mu.RLock()
	matched := make([]domain.ComplianceEvaluation, 0)
	for _, evaluation := range r.evaluations {
		if repositories.MatchesReference(evaluation, ref) {
			matched = append(matched, cloneEvaluation(evaluation))
		}
	}
	r.mu.RUnlock()

	repositories.SortEvaluationsNewestFirst(matched)
	return domain.SlicePage(matched, offset), nil
}

func cloneRule(rule domain.ComplianceRule) domain.ComplianceRule {
	rule.MinDeclaredValueUSD = cloneFloat(rule.MinDeclaredValueUSD)
	rule.MinWeightKg = cloneFloat(rule.MinWeightKg)
	rule.MaxWeightKg = cloneFloat(rule.MaxWeightKg)
	rule.RequiredCertifications = cloneStrings(rule.RequiredCertifications)
	rule.RequiredDocs = cloneStrings(rule.RequiredDocs)
	rule.Warnings = cloneStrings(rule.Warnings)
	return rule
}

func cloneEvaluation(evaluation domain.ComplianceEvaluation) domain.ComplianceEvaluation {
	evaluation.Input.Certifications = cloneStrings(evaluation.Input.Certifications)
	res := &evaluation.Result
	res.RequiredDocs = cloneStrings(res.RequiredDocs)
	res.Warnings = cloneStrings(res.Warnings)
	res.Flags = cloneStrings(res.Flags)
	res.AppliedRuleIDs = cloneStrings(res.AppliedRuleIDs)
	res.MissingCertifications = cloneStrings(res.MissingCertifications)
	return evaluation
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
