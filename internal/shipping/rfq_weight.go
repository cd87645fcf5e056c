package shipping

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/matcha-bridge/api/internal/domain"
)

// PackingAllowance is the share of the net weight added for packaging.
const PackingAllowance = 0.05

const weightPrecision = 4

var (
	gramsPerKg        = decimal.NewFromInt(1000)
	packingMultiplier = decimal.NewFromFloat(1 + PackingAllowance)
)

// RFQWeight derives the shipment weight of an RFQ. Line items without a resolved SKU or with a
// non-positive quantity are counted in SkippedItems and contribute nothing.
func RFQWeight(rfq domain.RFQ) domain.RFQWeight {
	out := domain.RFQWeight{
		RFQID: rfq.ID,
		Items: make([]domain.LineItemWeight, 0, len(rfq.LineItems)),
	}

	totalGrams := decimal.Zero
	for _, item := range rfq.LineItems {
		grams, ok := lineItemGrams(item)
		if !ok {
			out.SkippedItems++
			continue
		}
		totalGrams = totalGrams.Add(grams)
		out.Items = append(out.Items, domain.LineItemWeight{
			LineItemID: item.ID,
			SKUID:      item.SKU.SKUID,
			Quantity:   item.Quantity,
			Unit:       item.Unit,
			WeightKg:   grams.Div(gramsPerKg).Round(weightPrecision).InexactFloat64(),
		})
	}

	itemsKg := totalGrams.Div(gramsPerKg).Round(weightPrecision)
	totalKg := itemsKg.Mul(packingMultiplier).Round(weightPrecision)
	out.ItemsWeightKg = itemsKg.InexactFloat64()
	out.TotalWeightKg = totalKg.InexactFloat64()
	out.PackingAllowanceKg = totalKg.Sub(itemsKg).InexactFloat64()
	return out
}

func lineItemGrams(item domain.RFQLineItem) (decimal.Decimal, bool) {
	if item.SKU == nil || !validQuantity(item.Quantity) {
		return decimal.Zero, false
	}
	quantity := decimal.NewFromFloat(item.Quantity)
	if item.QuantityInGrams() {
		return quantity, true
	}
	if !validQuantity(item.SKU.NetWeightGrams) {
		return decimal.Zero, false
	}
	return quantity.Mul(decimal.NewFromFloat(item.SKU.NetWeightGrams)), true
}

func validQuantity(value float64) bool {
	return value > 0 && !math.IsNaN(value) && !math.IsInf(value, 0)
}
