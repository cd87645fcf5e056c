package shipping

import "github.com/matcha-bridge/api/internal/domain"

const (
	currencyUSD = "USD"

	kgToLb = 2.20462

	domesticVolumetricDivisor      = 6000.0
	internationalVolumetricDivisor = 5000.0

	heavyThresholdKg = 30.0
	heavyStepKg      = 10.0

	oversizeLongestSideCm = 120.0
	oversizeLengthGirthCm = 300.0

	parcelCostSpread  = 1.15
	freightCostSpread = 1.20
)

type serviceMultiplier struct {
	cost float64
	eta  float64
}

var serviceLevelMultipliers = map[domain.ServiceLevel]serviceMultiplier{
	domain.ServiceLevelEconomy:   {cost: 0.85, eta: 1.5},
	domain.ServiceLevelStandard:  {cost: 1.0, eta: 1.0},
	domain.ServiceLevelExpress:   {cost: 1.6, eta: 0.6},
	domain.ServiceLevelOvernight: {cost: 2.5, eta: 0.35},
}

type parcelTier struct {
	baseFee float64
	perLb   float64
	etaMin  int
	etaMax  int
}

const (
	parcelAMaxWeightKg     = 300.0
	parcelAOversizeRate    = 0.12
	parcelAHeavyStepRate   = 0.08
	parcelAResidentialFlat = 3.50

	parcelBMaxWeightKg        = 500.0
	parcelBOversizeRate       = 0.15
	parcelBHeavyStepRate      = 0.10
	parcelBHighValueThreshold = 1000.0
	parcelBHighValueRate      = 0.20
)

var parcelARates = map[bool]parcelTier{
	false: {baseFee: 8.00, perLb: 1.25, etaMin: 2, etaMax: 4},
	true:  {baseFee: 18.00, perLb: 3.10, etaMin: 5, etaMax: 8},
}

var parcelBRates = map[bool]parcelTier{
	false: {baseFee: 7.50, perLb: 1.10, etaMin: 3, etaMax: 5},
	true:  {baseFee: 20.00, perLb: 3.40, etaMin: 6, etaMax: 10},
}

const (
	freightModeSea = "sea"
	freightModeAir = "air"

	freightHeavyWeightKg         = 100.0
	freightInternationalWeightKg = 20.0
	freightInsuranceRate         = 0.02
	freightHandlingFee           = 45.00
)

type freightMode struct {
	label     string
	perKg     float64
	minCharge float64
	etaMin    int
	etaMax    int
}

var freightModes = map[string]freightMode{
	freightModeSea: {label: "Sea Freight", perKg: 0.85, minCharge: 150.00, etaMin: 25, etaMax: 40},
	freightModeAir: {label: "Air Freight", perKg: 4.20, minCharge: 250.00, etaMin: 4, etaMax: 8},
}

var freightModesByLevel = map[domain.ServiceLevel][]string{
	domain.ServiceLevelEconomy:   {freightModeSea},
	domain.ServiceLevelStandard:  {freightModeSea, freightModeAir},
	domain.ServiceLevelExpress:   {freightModeAir},
	domain.ServiceLevelOvernight: {freightModeAir},
}

const (
	sameRegionMultiplier  = 1.0
	crossRegionMultiplier = 1.2
	otherRouteMultiplier  = 1.5
)

var freightRegions = map[string]string{
	"JP": "asia", "CN": "asia", "KR": "asia", "TW": "asia", "HK": "asia", "SG": "asia",
	"TH": "asia", "VN": "asia", "MY": "asia", "ID": "asia", "PH": "asia", "IN": "asia",
	"US": "north_america", "CA": "north_america", "MX": "north_america",
	"GB": "europe", "DE": "europe", "FR": "europe", "IT": "europe", "ES": "europe",
	"NL": "europe", "BE": "europe", "CH": "europe", "AT": "europe", "SE": "europe",
	"DK": "europe", "NO": "europe", "FI": "europe", "IE": "europe", "PT": "europe", "PL": "europe",
	"AU": "oceania", "NZ": "oceania",
}

func routeMultiplier(origin, destination string) float64 {
	if origin == destination {
		return sameRegionMultiplier
	}
	from, okFrom := freightRegions[origin]
	to, okTo := freightRegions[destination]
	switch {
	case !okFrom || !okTo:
		return otherRouteMultiplier
	case from == to:
		return sameRegionMultiplier
	default:
		return crossRegionMultiplier
	}
}
