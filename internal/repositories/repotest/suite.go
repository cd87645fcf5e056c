// Package repotest holds the behavioural contract every repository backend must satisfy.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

// Factory builds a fresh, empty registry seeded with the given RFQs.
type Factory func(ctx context.Context, rfqs []domain.RFQ) (repositories.Registry, error)

// ContractSuite runs the shared repository contract against a backend.
type ContractSuite struct {
	suite.Suite

	NewRegistry Factory

	ctx      context.Context
	registry repositories.Registry
	base     time.Time
}

// SeedRFQs are available in every test.
func SeedRFQs() []domain.RFQ {
	created := time.Date(2026, time.February, 3, 9, 0, 0, 0, time.UTC)
	return []domain.RFQ{
		{
			ID:                 "rfq-1",
			BuyerID:            "buyer-1",
			DestinationCountry: "US",
			CreatedAt:          created,
			UpdatedAt:          created,
			LineItems: []domain.RFQLineItem{
				{ID: "li-1", ProductID: "prod-1", SKUID: "sku-100g", Quantity: 2, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-100g", NetWeightGrams: 100}},
				{ID: "li-2", ProductID: "prod-2", SKUID: "sku-50g", Quantity: 3, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-50g", NetWeightGrams: 50}},
				{ID: "li-3", ProductID: "prod-gone", SKUID: "sku-gone", Quantity: 4, Unit: "unit"},
			},
		},
	}
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.base = time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	registry, err := s.NewRegistry(s.ctx, SeedRFQs())
	s.Require().NoError(err)
	s.registry = registry
}

func (s *ContractSuite) TearDownTest() {
	if s.registry != nil {
		s.Require().NoError(s.registry.Close(s.ctx))
	}
}

func (s *ContractSuite) rule(id string, offset time.Duration, country, category string) domain.ComplianceRule {
	at := s.base.Add(offset)
	return domain.ComplianceRule{
		ID:                     id,
		DestinationCountry:     country,
		ProductCategory:        category,
		RequiredCertifications: []string{"JAS"},
		RequiredDocs:           []string{"Phytosanitary certificate"},
		Warnings:               []string{"Check radiation testing"},
		DisclaimerText:         "Disclaimer " + id,
		IsActive:               true,
		CreatedBy:              "admin-1",
		CreatedAt:              at,
		UpdatedAt:              at,
	}
}

func (s *ContractSuite) TestRuleRoundTrip() {
	minValue, minWeight, maxWeight := 1000.0, 1.5, 20.0
	rule := s.rule("rule-roundtrip", 0, "JP", "organic-matcha")
	rule.MinDeclaredValueUSD = &minValue
	rule.MinWeightKg = &minWeight
	rule.MaxWeightKg = &maxWeight
	rule.RequiredCertifications = []string{"JAS", "organic"}

	rules := s.registry.ComplianceRules()
	s.Require().NoError(rules.Insert(s.ctx, rule))

	got, err := rules.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal(rule.DestinationCountry, got.DestinationCountry)
	s.Equal(rule.ProductCategory, got.ProductCategory)
	s.Require().NotNil(got.MinDeclaredValueUSD)
	s.InDelta(minValue, *got.MinDeclaredValueUSD, 1e-9)
	s.Require().NotNil(got.MinWeightKg)
	s.InDelta(minWeight, *got.MinWeightKg, 1e-9)
	s.Require().NotNil(got.MaxWeightKg)
	s.InDelta(maxWeight, *got.MaxWeightKg, 1e-9)
	s.Equal([]string{"JAS", "organic"}, got.RequiredCertifications)
	s.Equal(rule.RequiredDocs, got.RequiredDocs)
	s.Equal(rule.Warnings, got.Warnings)
	s.Equal(rule.DisclaimerText, got.DisclaimerText)
	s.True(got.IsActive)
	s.True(rule.CreatedAt.Equal(got.CreatedAt))

	got.IsActive = false
	got.UpdatedAt = s.base.Add(time.Hour)
	got.MaxWeightKg = nil
	s.Require().NoError(rules.Update(s.ctx, got))

	updated, err := rules.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.False(updated.IsActive)
	s.Nil(updated.MaxWeightKg)
	s.True(got.UpdatedAt.Equal(updated.UpdatedAt))
}

func (s *ContractSuite) TestRuleErrorsAreClassified() {
	rules := s.registry.ComplianceRules()

	_, err := rules.FindByID(s.ctx, "missing")
	s.True(isNotFound(err), "expected not found, got %v", err)

	err = rules.Update(s.ctx, s.rule("missing", 0, "JP", "matcha"))
	s.True(isNotFound(err), "expected not found on update, got %v", err)

	rule := s.rule("rule-dup", 0, "JP", "matcha")
	s.Require().NoError(rules.Insert(s.ctx, rule))
	err = rules.Insert(s.ctx, rule)
	s.True(isConflict(err), "expected conflict, got %v", err)
}

func (s *ContractSuite) TestFindActiveOrdersOldestFirst() {
	rules := s.registry.ComplianceRules()
	inactive := s.rule("rule-inactive", -time.Hour, "JP", "organic-matcha")
	inactive.IsActive = false

	for _, rule := range []domain.ComplianceRule{
		s.rule("rule-c", 2*time.Minute, "JP", "organic-matcha"),
		s.rule("rule-b", 0, "JP", "organic-matcha"),
		s.rule("rule-a", 0, "JP", "organic-matcha"),
		s.rule("rule-other-category", 0, "JP", "organic-matcha-latte"),
		s.rule("rule-other-country", 0, "US", "organic-matcha"),
		inactive,
	} {
		s.Require().NoError(rules.Insert(s.ctx, rule))
	}

	active, err := rules.FindActive(s.ctx, "JP", "organic-matcha")
	s.Require().NoError(err)
	s.Equal([]string{"rule-a", "rule-b", "rule-c"}, ruleIDs(active))
}

func (s *ContractSuite) TestListFiltersAndPaginates() {
	rules := s.registry.ComplianceRules()
	for i := 0; i < 5; i++ {
		rule := s.rule(fmt.Sprintf("rule-%d", i), time.Duration(i)*time.Minute, "JP", "Ceremonial-Matcha")
		if i == 4 {
			rule.IsActive = false
		}
		s.Require().NoError(rules.Insert(s.ctx, rule))
	}
	s.Require().NoError(rules.Insert(s.ctx, s.rule("rule-us", 10*time.Minute, "US", "hojicha")))

	page, err := rules.List(s.ctx, repositories.ComplianceRuleFilter{
		Offset:          domain.Offset{Skip: 0, Take: 2},
		ProductCategory: "matcha",
	})
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Equal(3, page.PageCount)
	s.Equal(1, page.Page)
	s.Equal([]string{"rule-4", "rule-3"}, ruleIDs(page.Data))

	page, err = rules.List(s.ctx, repositories.ComplianceRuleFilter{
		Offset:          domain.Offset{Skip: 2, Take: 2},
		ProductCategory: "MATCHA",
		ActiveOnly:      true,
	})
	s.Require().NoError(err)
	s.Equal(4, page.Total)
	s.Equal(2, page.PageCount)
	s.Equal(2, page.Page)
	s.Equal([]string{"rule-1", "rule-0"}, ruleIDs(page.Data))

	page, err = rules.List(s.ctx, repositories.ComplianceRuleFilter{DestinationCountry: "us"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal([]string{"rule-us"}, ruleIDs(page.Data))

	page, err = rules.List(s.ctx, repositories.ComplianceRuleFilter{DestinationCountry: "FR"})
	s.Require().NoError(err)
	s.Equal(0, page.Total)
	s.Equal(0, page.PageCount)
	s.NotNil(page.Data)
	s.Empty(page.Data)
}

func (s *ContractSuite) TestEvaluationsListedNewestFirst() {
	evaluations := s.registry.ComplianceEvaluations()
	for i, refs := range [][3]string{
		{"rfq-1", "", ""},
		{"rfq-1", "quote-1", ""},
		{"", "quote-1", "order-1"},
		{"rfq-2", "", ""},
	} {
		at := s.base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(evaluations.Insert(s.ctx, domain.ComplianceEvaluation{
			ID:      fmt.Sprintf("eval-%d", i),
			RFQID:   refs[0],
			QuoteID: refs[1],
			OrderID: refs[2],
			Input: domain.ComplianceEvaluationInput{
				DestinationCountry: "JP",
				ProductCategory:    "organic-matcha",
				DeclaredValueUSD:   2000,
				WeightKg:           5,
				Certifications:     []string{"JAS"},
			},
			Result: domain.ComplianceEvaluationResult{
				RequiredDocs:          []string{"Phytosanitary certificate"},
				Flags:                 []string{"Missing certifications: organic"},
				MissingCertifications: []string{"organic"},
				AppliedRuleIDs:        []string{"rule-1"},
				DisclaimerText:        "Disclaimer",
				ComplianceLevel:       domain.ComplianceLevelHigh,
			},
			EvaluatedBy: "buyer-1",
			CreatedAt:   at,
		}))
	}

	byRFQ, err := evaluations.ListByReference(s.ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceRFQ, ID: "rfq-1"}, domain.Offset{})
	s.Require().NoError(err)
	s.Equal(2, byRFQ.Total)
	s.Require().Len(byRFQ.Data, 2)
	s.Equal("eval-1", byRFQ.Data[0].ID)
	s.Equal("eval-0", byRFQ.Data[1].ID)

	latest := byRFQ.Data[0]
	s.Equal("quote-1", latest.QuoteID)
	s.Equal(domain.ComplianceLevelHigh, latest.Result.ComplianceLevel)
	s.Equal([]string{"organic"}, latest.Result.MissingCertifications)
	s.Equal([]string{"JAS"}, latest.Input.Certifications)
	s.InDelta(2000, latest.Input.DeclaredValueUSD, 1e-9)

	byQuote, err := evaluations.ListByReference(s.ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceQuote, ID: "quote-1"}, domain.Offset{Take: 1})
	s.Require().NoError(err)
	s.Equal(2, byQuote.Total)
	s.Equal(2, byQuote.PageCount)
	s.Equal([]string{"eval-2"}, evaluationIDs(byQuote.Data))

	byOrder, err := evaluations.ListByReference(s.ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceOrder, ID: "order-1"}, domain.Offset{})
	s.Require().NoError(err)
	s.Equal([]string{"eval-2"}, evaluationIDs(byOrder.Data))

	none, err := evaluations.ListByReference(s.ctx, domain.EvaluationReference{Kind: domain.EvaluationReferenceOrder, ID: "order-none"}, domain.Offset{})
	s.Require().NoError(err)
	s.Equal(0, none.Total)
	s.Empty(none.Data)
}

func (s *ContractSuite) TestRFQFindByID() {
	rfq, err := s.registry.RFQs().FindByID(s.ctx, "rfq-1")
	s.Require().NoError(err)
	s.Equal("US", rfq.DestinationCountry)
	s.Require().Len(rfq.LineItems, 3)

	byID := map[string]domain.RFQLineItem{}
	for _, item := range rfq.LineItems {
		byID[item.ID] = item
	}
	s.Require().NotNil(byID["li-1"].SKU)
	s.InDelta(100, byID["li-1"].SKU.NetWeightGrams, 1e-9)
	s.InDelta(3, byID["li-2"].Quantity, 1e-9)
	s.Nil(byID["li-3"].SKU)

	_, err = s.registry.RFQs().FindByID(s.ctx, "rfq-missing")
	s.True(isNotFound(err), "expected not found, got %v", err)
}

func (s *ContractSuite) TestPing() {
	s.NoError(s.registry.Ping(s.ctx))
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func ruleIDs(rules []domain.ComplianceRule) []string {
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	return ids
}

func evaluationIDs(evaluations []domain.ComplianceEvaluation) []string {
	ids := make([]string, 0, len(evaluations))
	for _, evaluation := range evaluations {
		ids = append(ids, evaluation.ID)
	}
	return ids
}
