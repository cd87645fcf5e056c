package shipping

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/matcha-bridge/api/internal/domain"
)

const (
	ParcelCarrierAID = "parcel_a"
	ParcelCarrierBID = "parcel_b"
)

var titleCaser = cases.Title(language.English)

// ParcelCarrierA is a standard parcel network with a flat residential delivery surcharge.
type ParcelCarrierA struct{}

// Descriptor implements Carrier.
func (ParcelCarrierA) Descriptor() domain.CarrierDescriptor {
	return domain.CarrierDescriptor{ID: ParcelCarrierAID, Name: "Parcel Carrier A", MaxWeightKg: parcelAMaxWeightKg}
}

// SupportsRoute accepts any route up to 300kg.
func (ParcelCarrierA) SupportsRoute(_, _ string, weightKg float64) bool {
	return weightKg > 0 && weightKg <= parcelAMaxWeightKg
}

// Estimate quotes one service for the requested level.
func (c ParcelCarrierA) Estimate(params domain.EstimateParams) []domain.ShippingEstimate {
	international := params.International()
	tier := parcelARates[international]
	billable := BillableWeight(params)

	cost := tier.baseFee + billable*kgToLb*tier.perLb

	var notes []string
	surcharge := 0.0
	if isOversize(params) {
		surcharge += parcelAOversizeRate
		notes = append(notes, "oversize surcharge")
	}
	if steps := heavySteps(billable); steps > 0 {
		surcharge += parcelAHeavyStepRate * steps
		notes = append(notes, "heavy package surcharge")
	}
	cost *= 1 + surcharge
	notes = append(notes, "residential delivery fee")

	return parcelEstimate(c.Descriptor(), params, tier, cost, parcelAResidentialFlat, notes)
}

// ParcelCarrierB is a parcel network with a higher weight ceiling and a high-value surcharge.
type ParcelCarrierB struct{}

// Descriptor implements Carrier.
func (ParcelCarrierB) Descriptor() domain.CarrierDescriptor {
	return domain.CarrierDescriptor{ID: ParcelCarrierBID, Name: "Parcel Carrier B", MaxWeightKg: parcelBMaxWeightKg}
}

// SupportsRoute accepts any route up to 500kg.
func (ParcelCarrierB) SupportsRoute(_, _ string, weightKg float64) bool {
	return weightKg > 0 && weightKg <= parcelBMaxWeightKg
}

// Estimate quotes one service for the requested level.
func (c ParcelCarrierB) Estimate(params domain.EstimateParams) []domain.ShippingEstimate {
	international := params.International()
	tier := parcelBRates[international]
	billable := BillableWeight(params)

	cost := tier.baseFee + billable*kgToLb*tier.perLb

	var notes []string
	surcharge := 0.0
	if isOversize(params) {
		surcharge += parcelBOversizeRate
		notes = append(notes, "oversize surcharge")
	}
	if steps := heavySteps(billable); steps > 0 {
		surcharge += parcelBHeavyStepRate * steps
		notes = append(notes, "heavy package surcharge")
	}
	if params.DeclaredValueUSD > parcelBHighValueThreshold {
		surcharge += parcelBHighValueRate
		notes = append(notes, "high value surcharge")
	}
	cost *= 1 + surcharge

	return parcelEstimate(c.Descriptor(), params, tier, cost, 0, notes)
}

// parcelEstimate scales cost by the service level, then adds flatFee unscaled. It returns nothing
// when the cost overflows.
func parcelEstimate(desc domain.CarrierDescriptor, params domain.EstimateParams, tier parcelTier, cost, flatFee float64, notes []string) []domain.ShippingEstimate {
	m := multiplierFor(params.ServiceLevel)
	cost = cost*m.cost + flatFee
	costMin, okMin := roundMoney(cost)
	costMax, okMax := roundMoney(cost * parcelCostSpread)
	if !okMin || !okMax {
		return nil
	}
	etaMin, etaMax := etaRange(tier.etaMin, tier.etaMax, m.eta)

	scope := "Domestic"
	if params.International() {
		scope = "International"
	}

	estimate := domain.ShippingEstimate{
		CarrierID:   desc.ID,
		CarrierName: desc.Name,
		ServiceName: fmt.Sprintf("%s %s", titleCaser.String(string(params.ServiceLevel)), scope),
		CostMin:     costMin,
		CostMax:     costMax,
		Currency:    currencyUSD,
		EtaDaysMin:  etaMin,
		EtaDaysMax:  etaMax,
	}
	if len(notes) > 0 {
		estimate.Notes = "Includes " + strings.Join(notes, ", ")
	}
	return []domain.ShippingEstimate{estimate}
}
