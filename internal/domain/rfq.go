package domain

import (
	"strings"
	"time"
)

// GramUnits lists quantity units that already express a weight in grams.
var GramUnits = map[string]struct{}{
	"g":     {},
	"gram":  {},
	"grams": {},
}

// RFQ is a buyer's request for quotation with its requested line items.
type RFQ struct {
	ID                 string
	BuyerID            string
	DestinationCountry string
	LineItems          []RFQLineItem
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RFQLineItem is a requested product quantity. SKU is nil when the referenced product or SKU is missing.
type RFQLineItem struct {
	ID        string
	ProductID string
	SKUID     string
	Quantity  float64
	Unit      string
	SKU       *SKUWeight
}

// QuantityInGrams reports whether Quantity is already a gram weight.
func (i RFQLineItem) QuantityInGrams() bool {
	_, ok := GramUnits[strings.ToLower(strings.TrimSpace(i.Unit))]
	return ok
}

// SKUWeight carries the per-unit net weight of a SKU.
type SKUWeight struct {
	SKUID          string
	NetWeightGrams float64
}

// LineItemWeight is the weight contribution of a single line item.
type LineItemWeight struct {
	LineItemID string
	SKUID      string
	Quantity   float64
	Unit       string
	WeightKg   float64
}

// RFQWeight is the shipment weight derived from an RFQ's line items.
type RFQWeight struct {
	RFQID              string
	ItemsWeightKg      float64
	PackingAllowanceKg float64
	TotalWeightKg      float64
	Items              []LineItemWeight
	SkippedItems       int
}
