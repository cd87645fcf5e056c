package shipping

import (
	"testing"

	"github.com/matcha-bridge/api/internal/domain"
)

func TestRFQWeight_AppliesPackingAllowance(t *testing.T) {
	rfq := domain.RFQ{
		ID: "rfq-1",
		LineItems: []domain.RFQLineItem{
			{ID: "li-1", Quantity: 2, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-100g", NetWeightGrams: 100}},
			{ID: "li-2", Quantity: 3, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-50g", NetWeightGrams: 50}},
		},
	}

	weight := RFQWeight(rfq)
	if weight.ItemsWeightKg != 0.35 {
		t.Fatalf("expected items weight 0.35, got %v", weight.ItemsWeightKg)
	}
	if weight.TotalWeightKg != 0.3675 {
		t.Fatalf("expected total weight 0.3675, got %v", weight.TotalWeightKg)
	}
	if weight.PackingAllowanceKg != 0.0175 {
		t.Fatalf("expected packing allowance 0.0175, got %v", weight.PackingAllowanceKg)
	}
	if len(weight.Items) != 2 || weight.Items[0].WeightKg != 0.2 || weight.Items[1].WeightKg != 0.15 {
		t.Fatalf("unexpected item weights %+v", weight.Items)
	}
	if weight.SkippedItems != 0 {
		t.Fatalf("expected no skipped items, got %d", weight.SkippedItems)
	}
}

func TestRFQWeight_GramUnitsAndSkippedItems(t *testing.T) {
	rfq := domain.RFQ{
		ID: "rfq-2",
		LineItems: []domain.RFQLineItem{
			{ID: "bulk", Quantity: 1500, Unit: " Grams ", SKU: &domain.SKUWeight{SKUID: "sku-bulk", NetWeightGrams: 1000}},
			{ID: "missing", Quantity: 4, Unit: "unit"},
			{ID: "zero", Quantity: 0, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-1", NetWeightGrams: 30}},
			{ID: "no-weight", Quantity: 2, Unit: "unit", SKU: &domain.SKUWeight{SKUID: "sku-2"}},
		},
	}

	weight := RFQWeight(rfq)
	if weight.ItemsWeightKg != 1.5 {
		t.Fatalf("expected gram quantity used directly, got %v", weight.ItemsWeightKg)
	}
	if weight.TotalWeightKg != 1.575 {
		t.Fatalf("expected 1.575, got %v", weight.TotalWeightKg)
	}
	if weight.SkippedItems != 3 {
		t.Fatalf("expected 3 skipped items, got %d", weight.SkippedItems)
	}
}

func TestRFQWeight_EmptyRFQ(t *testing.T) {
	weight := RFQWeight(domain.RFQ{ID: "empty"})
	if weight.TotalWeightKg != 0 || weight.Items == nil {
		t.Fatalf("expected zero weight with empty items, got %+v", weight)
	}
}
