package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
	"github.com/matcha-bridge/api/internal/repositories/repotest"
)

func TestMemoryRepositoryContract(t *testing.T) {
	suite.Run(t, &repotest.ContractSuite{
		NewRegistry: func(_ context.Context, rfqs []domain.RFQ) (repositories.Registry, error) {
			return NewRegistry(rfqs...), nil
		},
	})
}

func TestComplianceRuleRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewComplianceRuleRepository()
	limit := 10.0
	rule := domain.ComplianceRule{ID: "r1", DestinationCountry: "JP", ProductCategory: "matcha", MaxWeightKg: &limit, RequiredDocs: []string{"invoice"}, IsActive: true}
	if err := repo.Insert(ctx, rule); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	limit = 99
	rule.RequiredDocs[0] = "mutated"

	got, err := repo.FindByID(ctx, "r1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if *got.MaxWeightKg != 10 {
		t.Fatalf("expected stored threshold to be isolated from caller, got %v", *got.MaxWeightKg)
	}
	if got.RequiredDocs[0] != "invoice" {
		t.Fatalf("expected stored docs to be isolated from caller, got %v", got.RequiredDocs)
	}
}

func TestMemoryRepositoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	registry := NewRegistry()
	if _, err := registry.ComplianceRules().FindActive(ctx, "JP", "matcha"); err == nil {
		t.Fatalf("expected cancelled context error")
	}
	if _, err := registry.RFQs().FindByID(ctx, "rfq-1"); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}
