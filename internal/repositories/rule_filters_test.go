package repositories

import (
	"testing"
	"time"

	domain "github.com/matcha-bridge/api/internal/domain"
)

func TestMatchesRuleFilter(t *testing.T) {
	rule := domain.ComplianceRule{
		ID:                 "r1",
		DestinationCountry: "JP",
		ProductCategory:    "Organic-Matcha",
		IsActive:           false,
	}

	cases := []struct {
		name   string
		filter ComplianceRuleFilter
		want   bool
	}{
		{name: "empty filter", filter: ComplianceRuleFilter{}, want: true},
		{name: "country lower case", filter: ComplianceRuleFilter{DestinationCountry: "jp"}, want: true},
		{name: "country mismatch", filter: ComplianceRuleFilter{DestinationCountry: "US"}, want: false},
		{name: "category substring case insensitive", filter: ComplianceRuleFilter{ProductCategory: "matcha"}, want: true},
		{name: "category mismatch", filter: ComplianceRuleFilter{ProductCategory: "sencha"}, want: false},
		{name: "active only excludes inactive", filter: ComplianceRuleFilter{ActiveOnly: true}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesRuleFilter(rule, tc.filter); got != tc.want {
				t.Fatalf("MatchesRuleFilter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSortRulesForEvaluation(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rules := []domain.ComplianceRule{
		{ID: "c", CreatedAt: base.Add(time.Hour)},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}

	SortRulesForEvaluation(rules)
	if rules[0].ID != "a" || rules[1].ID != "b" || rules[2].ID != "c" {
		t.Fatalf("unexpected evaluation order: %s %s %s", rules[0].ID, rules[1].ID, rules[2].ID)
	}

	SortRulesNewestFirst(rules)
	if rules[0].ID != "c" || rules[2].ID != "a" {
		t.Fatalf("unexpected listing order: %s %s %s", rules[0].ID, rules[1].ID, rules[2].ID)
	}
}

func TestMatchesReference(t *testing.T) {
	evaluation := domain.ComplianceEvaluation{RFQID: "rfq-1", OrderID: "order-9"}

	if !MatchesReference(evaluation, domain.EvaluationReference{Kind: domain.EvaluationReferenceRFQ, ID: "rfq-1"}) {
		t.Fatalf("expected rfq reference to match")
	}
	if !MatchesReference(evaluation, domain.EvaluationReference{Kind: domain.EvaluationReferenceOrder, ID: "order-9"}) {
		t.Fatalf("expected order reference to match")
	}
	if MatchesReference(evaluation, domain.EvaluationReference{Kind: domain.EvaluationReferenceQuote, ID: ""}) {
		t.Fatalf("blank reference must not match")
	}
	if MatchesReference(evaluation, domain.EvaluationReference{Kind: "invoice", ID: "rfq-1"}) {
		t.Fatalf("unknown kind must not match")
	}
}
