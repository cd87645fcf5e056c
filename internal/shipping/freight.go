package shipping

import (
	"fmt"
	"math"

	"github.com/matcha-bridge/api/internal/domain"
)

const FreightForwarderID = "freight_forwarder"

// FreightForwarder quotes consolidated sea and air freight with insurance and handling.
type FreightForwarder struct{}

// Descriptor implements Carrier.
func (FreightForwarder) Descriptor() domain.CarrierDescriptor {
	return domain.CarrierDescriptor{ID: FreightForwarderID, Name: "Freight Forwarder"}
}

// SupportsRoute accepts heavy shipments on any route and every international shipment.
func (FreightForwarder) SupportsRoute(origin, destination string, weightKg float64) bool {
	international := origin != destination
	switch {
	case weightKg >= freightHeavyWeightKg:
		return true
	case international && weightKg >= freightInternationalWeightKg:
		return true
	default:
		return international
	}
}

// Estimate returns one estimate per freight mode offered for the service level.
func (f FreightForwarder) Estimate(params domain.EstimateParams) []domain.ShippingEstimate {
	modes, ok := freightModesByLevel[params.ServiceLevel]
	if !ok {
		modes = freightModesByLevel[domain.ServiceLevelStandard]
	}

	desc := f.Descriptor()
	m := multiplierFor(params.ServiceLevel)
	billable := BillableWeight(params)
	route := routeMultiplier(params.OriginCountry, params.DestinationCountry)
	insurance := params.DeclaredValueUSD * freightInsuranceRate

	estimates := make([]domain.ShippingEstimate, 0, len(modes))
	for _, key := range modes {
		mode := freightModes[key]
		base := math.Max(mode.minCharge, billable*mode.perKg)
		cost := (base*route + insurance + freightHandlingFee) * m.cost
		costMin, okMin := roundMoney(cost)
		costMax, okMax := roundMoney(cost * freightCostSpread)
		if !okMin || !okMax {
			continue
		}
		etaMin, etaMax := etaRange(mode.etaMin, mode.etaMax, m.eta)

		estimates = append(estimates, domain.ShippingEstimate{
			CarrierID:   desc.ID,
			CarrierName: desc.Name,
			ServiceName: mode.label,
			CostMin:     costMin,
			CostMax:     costMax,
			Currency:    currencyUSD,
			EtaDaysMin:  etaMin,
			EtaDaysMax:  etaMax,
			Notes:       fmt.Sprintf("Includes cargo insurance (%.0f%% of declared value) and handling fee", freightInsuranceRate*100),
		})
	}
	return estimates
}
