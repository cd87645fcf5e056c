package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/platform/geo"
	"github.com/matcha-bridge/api/internal/platform/metrics"
	"github.com/matcha-bridge/api/internal/platform/textutil"
	"github.com/matcha-bridge/api/internal/repositories"
)

var (
	errComplianceRulesRepositoryRequired       = errors.New("compliance: rule repository is required")
	errComplianceEvaluationsRepositoryRequired = errors.New("compliance: evaluation repository is required")
)

// ErrComplianceInvalidInput indicates the caller supplied an invalid shipment or rule.
var ErrComplianceInvalidInput = errors.New("compliance: invalid input")

// ErrComplianceRuleNotFound indicates the referenced rule does not exist.
var ErrComplianceRuleNotFound = errors.New("compliance: rule not found")

// ErrComplianceConflict indicates a rule with the same identifier already exists.
var ErrComplianceConflict = errors.New("compliance: conflict")

// ErrComplianceUnavailable indicates the rule or audit store could not serve the request.
var ErrComplianceUnavailable = errors.New("compliance: service unavailable")

const (
	// DefaultComplianceDisclaimer is returned when no matched rule carries its own disclaimer.
	DefaultComplianceDisclaimer = "This evaluation is informational only. Confirm import requirements with the destination customs authority before shipping."

	complianceRuleIDPrefix       = "rule_"
	complianceEvaluationIDPrefix = "eval_"
	maxProductCategoryLength     = 120
	maxDisclaimerLength          = 4000
	maxRuleListEntries           = 50
	highLevelRuleCount           = 3
	mediumLevelRuleCount         = 2
)

// ComplianceServiceDeps wires the rule store, the audit store and optional collaborators.
type ComplianceServiceDeps struct {
	Rules       repositories.ComplianceRuleRepository
	Evaluations repositories.ComplianceEvaluationRepository
	// Publisher is notified after every saved evaluation. Optional.
	Publisher         EvaluationPublisher
	Metrics           *metrics.Metrics
	DefaultDisclaimer string
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(context.Context, string, map[string]any)
}

type complianceService struct {
	rules       repositories.ComplianceRuleRepository
	evaluations repositories.ComplianceEvaluationRepository
	publisher   EvaluationPublisher
	metrics     *metrics.Metrics
	disclaimer  string
	sanitizer   *bluemonday.Policy
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewComplianceService constructs the rule evaluator with its CRUD and audit operations.
func NewComplianceService(deps ComplianceServiceDeps) (ComplianceService, error) {
	if deps.Rules == nil {
		return nil, errComplianceRulesRepositoryRequired
	}
	if deps.Evaluations == nil {
		return nil, errComplianceEvaluationsRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	disclaimer := strings.TrimSpace(deps.DefaultDisclaimer)
	if disclaimer == "" {
		disclaimer = DefaultComplianceDisclaimer
	}

	return &complianceService{
		rules:       deps.Rules,
		evaluations: deps.Evaluations,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		disclaimer:  disclaimer,
		sanitizer:   newDisclaimerPolicy(),
		now:         func() time.Time { return clock().UTC() },
		newID:       func() string { return strings.ToLower(idGen()) },
		logger:      logger,
	}, nil
}

// newDisclaimerPolicy keeps inline formatting and http(s) links; scripts, event handlers and
// javascript: URLs are removed.
func newDisclaimerPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowURLSchemes("http", "https", "mailto")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Evaluate aggregates the requirements of every active rule the shipment satisfies.
func (s *complianceService) Evaluate(ctx context.Context, input ComplianceEvaluationInput) (ComplianceEvaluationResult, error) {
	start := time.Now()
	normalised, err := normaliseEvaluationInput(input)
	if err != nil {
		return ComplianceEvaluationResult{}, err
	}

	candidates, err := s.rules.FindActive(ctx, normalised.DestinationCountry, normalised.ProductCategory)
	if err != nil {
		s.logger(ctx, "compliance.rules_query_failed", map[string]any{
			"country":  normalised.DestinationCountry,
			"category": normalised.ProductCategory,
			"error":    err.Error(),
		})
		return ComplianceEvaluationResult{}, s.translateRepoError(err)
	}

	matched := make([]domain.ComplianceRule, 0, len(candidates))
	for _, rule := range candidates {
		if !rule.IsActive {
			continue
		}
		if rule.Matches(normalised.DeclaredValueUSD, normalised.WeightKg) {
			matched = append(matched, rule)
		}
	}

	result := aggregateRules(matched, normalised.Certifications, s.disclaimer)
	s.metrics.ObserveEvaluation(string(result.ComplianceLevel), start)
	return result, nil
}

// aggregateRules merges matched rules, which must already be in evaluation order.
func aggregateRules(matched []domain.ComplianceRule, held []string, defaultDisclaimer string) ComplianceEvaluationResult {
	result := ComplianceEvaluationResult{
		RequiredDocs:          []string{},
		Warnings:              []string{},
		Flags:                 []string{},
		DisclaimerText:        defaultDisclaimer,
		AppliedRuleIDs:        []string{},
		MissingCertifications: []string{},
		ComplianceLevel:       domain.ComplianceLevelLow,
	}
	if len(matched) == 0 {
		return result
	}

	docs := make([][]string, 0, len(matched))
	warnings := make([][]string, 0, len(matched))
	certifications := make([][]string, 0, len(matched))
	for _, rule := range matched {
		docs = append(docs, rule.RequiredDocs)
		warnings = append(warnings, rule.Warnings)
		certifications = append(certifications, rule.RequiredCertifications)
		result.AppliedRuleIDs = append(result.AppliedRuleIDs, rule.ID)
	}
	result.RequiredDocs = textutil.UniqueOrdered(docs...)
	result.Warnings = textutil.UniqueOrdered(warnings...)
	result.MissingCertifications = textutil.Difference(textutil.UniqueOrdered(certifications...), held)
	if len(result.MissingCertifications) > 0 {
		result.Flags = append(result.Flags, "Missing certifications: "+strings.Join(result.MissingCertifications, ", "))
	}

	if disclaimer := strings.TrimSpace(matched[0].DisclaimerText); disclaimer != "" {
		result.DisclaimerText = disclaimer
	}
	result.ComplianceLevel = complianceLevel(len(matched), len(result.Flags))
	return result
}

func complianceLevel(matchedRules, flags int) domain.ComplianceLevel {
	switch {
	case matchedRules >= highLevelRuleCount || flags > 0:
		return domain.ComplianceLevelHigh
	case matchedRules == mediumLevelRuleCount:
		return domain.ComplianceLevelMedium
	default:
		return domain.ComplianceLevelLow
	}
}

func normaliseEvaluationInput(input ComplianceEvaluationInput) (ComplianceEvaluationInput, error) {
	country, ok := geo.NormalizeCountry(input.DestinationCountry)
	if !ok {
		return ComplianceEvaluationInput{}, invalidField(ErrComplianceInvalidInput, "destinationCountry", "unknown destination country %q", input.DestinationCountry)
	}
	category := strings.TrimSpace(input.ProductCategory)
	if category == "" || len([]rune(category)) > maxProductCategoryLength {
		return ComplianceEvaluationInput{}, invalidField(ErrComplianceInvalidInput, "productCategory", "product category is required")
	}
	if !finite(input.DeclaredValueUSD) || input.DeclaredValueUSD < 0 {
		return ComplianceEvaluationInput{}, invalidField(ErrComplianceInvalidInput, "declaredValueUsd", "declared value must be zero or greater")
	}
	if !finite(input.WeightKg) || input.WeightKg <= 0 {
		return ComplianceEvaluationInput{}, invalidField(ErrComplianceInvalidInput, "weightKg", "weight must be greater than zero")
	}
	return ComplianceEvaluationInput{
		DestinationCountry: country,
		ProductCategory:    category,
		DeclaredValueUSD:   input.DeclaredValueUSD,
		WeightKg:           input.WeightKg,
		Certifications:     textutil.UniqueOrdered(input.Certifications),
	}, nil
}

// CreateRule validates and stores a new rule.
func (s *complianceService) CreateRule(ctx context.Context, cmd CreateComplianceRuleCommand) (ComplianceRule, error) {
	now := s.now()
	rule := domain.ComplianceRule{
		ID:                     complianceRuleIDPrefix + s.newID(),
		DestinationCountry:     cmd.DestinationCountry,
		ProductCategory:        cmd.ProductCategory,
		MinDeclaredValueUSD:    cloneFloat(cmd.MinDeclaredValueUSD),
		MinWeightKg:            cloneFloat(cmd.MinWeightKg),
		MaxWeightKg:            cloneFloat(cmd.MaxWeightKg),
		RequiredCertifications: cmd.RequiredCertifications,
		RequiredDocs:           cmd.RequiredDocs,
		Warnings:               cmd.Warnings,
		DisclaimerText:         cmd.DisclaimerText,
		IsActive:               true,
		CreatedBy:              strings.TrimSpace(cmd.ActorID),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if cmd.IsActive != nil {
		rule.IsActive = *cmd.IsActive
	}

	rule, err := s.normaliseRule(rule)
	if err != nil {
		return ComplianceRule{}, err
	}
	if err := s.rules.Insert(ctx, rule); err != nil {
		return ComplianceRule{}, s.translateRepoError(err)
	}

	s.metrics.IncRuleMutation("create")
	s.logger(ctx, "compliance.rule_created", map[string]any{
		"ruleId":   rule.ID,
		"country":  rule.DestinationCountry,
		"category": rule.ProductCategory,
		"actorId":  rule.CreatedBy,
	})
	return rule, nil
}

// UpdateRule applies the non-nil fields of cmd to the stored rule.
func (s *complianceService) UpdateRule(ctx context.Context, cmd UpdateComplianceRuleCommand) (ComplianceRule, error) {
	rule, err := s.loadRule(ctx, cmd.RuleID)
	if err != nil {
		return ComplianceRule{}, err
	}

	if cmd.DestinationCountry != nil {
		rule.DestinationCountry = *cmd.DestinationCountry
	}
	if cmd.ProductCategory != nil {
		rule.ProductCategory = *cmd.ProductCategory
	}
	rule.MinDeclaredValueUSD = patchThreshold(rule.MinDeclaredValueUSD, cmd.MinDeclaredValueUSD, cmd.ClearMinDeclaredValue)
	rule.MinWeightKg = patchThreshold(rule.MinWeightKg, cmd.MinWeightKg, cmd.ClearMinWeight)
	rule.MaxWeightKg = patchThreshold(rule.MaxWeightKg, cmd.MaxWeightKg, cmd.ClearMaxWeight)
	if cmd.RequiredCertifications != nil {
		rule.RequiredCertifications = *cmd.RequiredCertifications
	}
	if cmd.RequiredDocs != nil {
		rule.RequiredDocs = *cmd.RequiredDocs
	}
	if cmd.Warnings != nil {
		rule.Warnings = *cmd.Warnings
	}
	if cmd.DisclaimerText != nil {
		rule.DisclaimerText = *cmd.DisclaimerText
	}
	if cmd.IsActive != nil {
		rule.IsActive = *cmd.IsActive
	}
	rule.UpdatedAt = s.now()

	rule, err = s.normaliseRule(rule)
	if err != nil {
		return ComplianceRule{}, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return ComplianceRule{}, s.translateRepoError(err)
	}

	s.metrics.IncRuleMutation("update")
	s.logger(ctx, "compliance.rule_updated", map[string]any{
		"ruleId":  rule.ID,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return rule, nil
}

// DeleteRule deactivates the rule. Deactivating an inactive rule is a no-op.
func (s *complianceService) DeleteRule(ctx context.Context, cmd DeleteComplianceRuleCommand) (ComplianceRule, error) {
	rule, err := s.loadRule(ctx, cmd.RuleID)
	if err != nil {
		return ComplianceRule{}, err
	}
	if !rule.IsActive {
		return rule, nil
	}

	rule.IsActive = false
	rule.UpdatedAt = s.now()
	if err := s.rules.Update(ctx, rule); err != nil {
		return ComplianceRule{}, s.translateRepoError(err)
	}

	s.metrics.IncRuleMutation("delete")
	s.logger(ctx, "compliance.rule_deactivated", map[string]any{
		"ruleId":  rule.ID,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return rule, nil
}

func (s *complianceService) GetRule(ctx context.Context, ruleID string) (ComplianceRule, error) {
	return s.loadRule(ctx, ruleID)
}

// ListRules returns a page of rules, newest first.
func (s *complianceService) ListRules(ctx context.Context, filter ComplianceRuleFilter) (domain.Page[ComplianceRule], error) {
	normalised := ComplianceRuleFilter{
		Offset:          filter.Offset.Normalise(),
		ProductCategory: strings.TrimSpace(filter.ProductCategory),
		ActiveOnly:      filter.ActiveOnly,
	}
	if raw := strings.TrimSpace(filter.DestinationCountry); raw != "" {
		country, ok := geo.NormalizeCountry(raw)
		if !ok {
			return domain.Page[ComplianceRule]{}, invalidField(ErrComplianceInvalidInput, "country", "unknown country filter %q", raw)
		}
		normalised.DestinationCountry = country
	}

	page, err := s.rules.List(ctx, normalised)
	if err != nil {
		return domain.Page[ComplianceRule]{}, s.translateRepoError(err)
	}
	return page, nil
}

// SaveEvaluation stores an audit snapshot, evaluating the input first when no result is supplied.
func (s *complianceService) SaveEvaluation(ctx context.Context, cmd SaveEvaluationCommand) (ComplianceEvaluation, error) {
	input, err := normaliseEvaluationInput(cmd.Input)
	if err != nil {
		return ComplianceEvaluation{}, err
	}

	var result ComplianceEvaluationResult
	if cmd.Result != nil {
		result = cloneEvaluationResult(*cmd.Result)
		switch result.ComplianceLevel {
		case "":
			result.ComplianceLevel = complianceLevel(len(result.AppliedRuleIDs), len(result.Flags))
		case domain.ComplianceLevelLow, domain.ComplianceLevelMedium, domain.ComplianceLevelHigh:
		default:
			return ComplianceEvaluation{}, invalidField(ErrComplianceInvalidInput, "complianceLevel", "unknown compliance level %q", result.ComplianceLevel)
		}
	} else {
		result, err = s.Evaluate(ctx, input)
		if err != nil {
			return ComplianceEvaluation{}, err
		}
	}

	evaluation := domain.ComplianceEvaluation{
		ID:          complianceEvaluationIDPrefix + s.newID(),
		RFQID:       strings.TrimSpace(cmd.RFQID),
		QuoteID:     strings.TrimSpace(cmd.QuoteID),
		OrderID:     strings.TrimSpace(cmd.OrderID),
		Input:       input,
		Result:      result,
		EvaluatedBy: strings.TrimSpace(cmd.EvaluatedBy),
		CreatedAt:   s.now(),
	}
	if err := s.evaluations.Insert(ctx, evaluation); err != nil {
		return ComplianceEvaluation{}, s.translateRepoError(err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEvaluationSaved(ctx, evaluation); err != nil {
			s.logger(ctx, "compliance.evaluation_publish_failed", map[string]any{
				"evaluationId": evaluation.ID,
				"error":        err.Error(),
			})
		}
	}
	return evaluation, nil
}

func (s *complianceService) ListEvaluationsByRFQ(ctx context.Context, rfqID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error) {
	return s.listEvaluations(ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceRFQ, ID: rfqID}, offset)
}

func (s *complianceService) ListEvaluationsByQuote(ctx context.Context, quoteID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error) {
	return s.listEvaluations(ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceQuote, ID: quoteID}, offset)
}

func (s *complianceService) ListEvaluationsByOrder(ctx context.Context, orderID string, offset domain.Offset) (domain.Page[ComplianceEvaluation], error) {
	return s.listEvaluations(ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceOrder, ID: orderID}, offset)
}

func (s *complianceService) listEvaluations(ctx context.Context, ref domain.EvaluationReference, offset domain.Offset) (domain.Page[ComplianceEvaluation], error) {
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.ID == "" {
		return domain.Page[ComplianceEvaluation]{}, fmt.Errorf("%w: %s id is required", ErrComplianceInvalidInput, ref.Kind)
	}
	page, err := s.evaluations.ListByReference(ctx, ref, offset.Normalise())
	if err != nil {
		return domain.Page[ComplianceEvaluation]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *complianceService) loadRule(ctx context.Context, ruleID string) (ComplianceRule, error) {
	id := strings.TrimSpace(ruleID)
	if id == "" {
		return ComplianceRule{}, fmt.Errorf("%w: rule id is required", ErrComplianceInvalidInput)
	}
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return ComplianceRule{}, s.translateRepoError(err)
	}
	return rule, nil
}

// normaliseRule validates a rule about to be written and canonicalises its fields.
func (s *complianceService) normaliseRule(rule ComplianceRule) (ComplianceRule, error) {
	country, ok := geo.NormalizeCountry(rule.DestinationCountry)
	if !ok {
		return ComplianceRule{}, invalidField(ErrComplianceInvalidInput, "destinationCountry", "unknown destination country %q", rule.DestinationCountry)
	}
	rule.DestinationCountry = country

	rule.ProductCategory = strings.TrimSpace(rule.ProductCategory)
	if rule.ProductCategory == "" || len([]rune(rule.ProductCategory)) > maxProductCategoryLength {
		return ComplianceRule{}, invalidField(ErrComplianceInvalidInput, "productCategory", "product category is required")
	}

	for name, value := range map[string]*float64{
		"minDeclaredValueUsd": rule.MinDeclaredValueUSD,
		"minWeightKg":         rule.MinWeightKg,
		"maxWeightKg":         rule.MaxWeightKg,
	} {
		if value != nil && (!finite(*value) || *value < 0) {
			return ComplianceRule{}, invalidField(ErrComplianceInvalidInput, name, "%s must be zero or greater", name)
		}
	}
	if rule.MinWeightKg != nil && rule.MaxWeightKg != nil && *rule.MinWeightKg > *rule.MaxWeightKg {
		return ComplianceRule{}, invalidField(ErrComplianceInvalidInput, "minWeightKg", "minWeightKg must not exceed maxWeightKg")
	}

	rule.RequiredCertifications = textutil.UniqueOrdered(rule.RequiredCertifications)
	rule.RequiredDocs = textutil.UniqueOrdered(rule.RequiredDocs)
	rule.Warnings = textutil.UniqueOrdered(rule.Warnings)
	for _, list := range [][]string{rule.RequiredCertifications, rule.RequiredDocs, rule.Warnings} {
		if len(list) > maxRuleListEntries {
			return ComplianceRule{}, fmt.Errorf("%w: too many list entries", ErrComplianceInvalidInput)
		}
	}

	rule.DisclaimerText = strings.TrimSpace(s.sanitizer.Sanitize(rule.DisclaimerText))
	if len([]rune(rule.DisclaimerText)) > maxDisclaimerLength {
		return ComplianceRule{}, invalidField(ErrComplianceInvalidInput, "disclaimerText", "disclaimer text is too long")
	}
	return rule, nil
}

func (s *complianceService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrComplianceRuleNotFound
		case repoErr.IsConflict():
			return ErrComplianceConflict
		}
	}
	return fmt.Errorf("%w: %v", ErrComplianceUnavailable, err)
}

func patchThreshold(current, next *float64, clear bool) *float64 {
	if clear {
		return nil
	}
	if next != nil {
		return cloneFloat(next)
	}
	return current
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneEvaluationResult(result ComplianceEvaluationResult) ComplianceEvaluationResult {
	return ComplianceEvaluationResult{
		RequiredDocs:          textutil.UniqueOrdered(result.RequiredDocs),
		Warnings:              textutil.UniqueOrdered(result.Warnings),
		Flags:                 textutil.UniqueOrdered(result.Flags),
		DisclaimerText:        strings.TrimSpace(result.DisclaimerText),
		AppliedRuleIDs:        textutil.UniqueOrdered(result.AppliedRuleIDs),
		MissingCertifications: textutil.UniqueOrdered(result.MissingCertifications),
		ComplianceLevel:       result.ComplianceLevel,
	}
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
