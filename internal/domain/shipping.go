package domain

import "time"

// ServiceLevel is the speed tier a buyer asks carriers to quote.
type ServiceLevel string

const (
	ServiceLevelEconomy   ServiceLevel = "economy"
	ServiceLevelStandard  ServiceLevel = "standard"
	ServiceLevelExpress   ServiceLevel = "express"
	ServiceLevelOvernight ServiceLevel = "overnight"
)

// Valid reports whether the level is one of the supported tiers.
func (l ServiceLevel) Valid() bool {
	switch l {
	case ServiceLevelEconomy, ServiceLevelStandard, ServiceLevelExpress, ServiceLevelOvernight:
		return true
	default:
		return false
	}
}

// EstimateParams is the normalised input handed to every carrier adapter.
type EstimateParams struct {
	OriginCountry         string
	DestinationCountry    string
	OriginPostalCode      string
	DestinationPostalCode string
	WeightKg              float64
	LengthCm              float64
	WidthCm               float64
	HeightCm              float64
	DeclaredValueUSD      float64
	ServiceLevel          ServiceLevel
}

// International reports whether the shipment crosses a border.
func (p EstimateParams) International() bool {
	return p.OriginCountry != p.DestinationCountry
}

// ShippingEstimate is one quoted option from a carrier.
type ShippingEstimate struct {
	CarrierID   string
	CarrierName string
	ServiceName string
	CostMin     float64
	CostMax     float64
	Currency    string
	EtaDaysMin  int
	EtaDaysMax  int
	Notes       string
}

// ShippingQuote is the merged, sorted response of an estimate request.
type ShippingQuote struct {
	Estimates       []ShippingEstimate
	WeightKg        float64
	Origin          string
	Destination     string
	ServiceLevel    ServiceLevel
	WeightBreakdown *RFQWeight
	CalculatedAt    time.Time
}

// CarrierDescriptor lists a registered carrier adapter.
type CarrierDescriptor struct {
	ID          string
	Name        string
	MaxWeightKg float64
}
