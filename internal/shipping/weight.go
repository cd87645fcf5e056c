package shipping

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/matcha-bridge/api/internal/domain"
)

// VolumetricWeight converts centimetre dimensions to a dimensional weight in kilograms.
func VolumetricWeight(lengthCm, widthCm, heightCm float64, international bool) float64 {
	divisor := domesticVolumetricDivisor
	if international {
		divisor = internationalVolumetricDivisor
	}
	return lengthCm * widthCm * heightCm / divisor
}

// BillableWeight is the larger of the actual and volumetric weights.
func BillableWeight(params domain.EstimateParams) float64 {
	volumetric := VolumetricWeight(params.LengthCm, params.WidthCm, params.HeightCm, params.International())
	return math.Max(params.WeightKg, volumetric)
}

func isOversize(params domain.EstimateParams) bool {
	sides := []float64{params.LengthCm, params.WidthCm, params.HeightCm}
	sort.Float64s(sides)
	longest := sides[2]
	if longest > oversizeLongestSideCm {
		return true
	}
	girth := 2 * (sides[0] + sides[1])
	return longest+girth > oversizeLengthGirthCm
}

// heavySteps counts started 10kg increments above the heavy threshold.
func heavySteps(billableKg float64) float64 {
	if billableKg <= heavyThresholdKg {
		return 0
	}
	return math.Ceil((billableKg - heavyThresholdKg) / heavyStepKg)
}

// roundMoney rounds to cents. ok is false when value is not a finite amount.
func roundMoney(value float64) (rounded float64, ok bool) {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return decimal.NewFromFloat(value).Round(2).InexactFloat64(), true
}

func scaledEta(days int, factor float64) int {
	scaled := int(math.Ceil(float64(days) * factor))
	if scaled < 1 {
		return 1
	}
	return scaled
}

func etaRange(etaMin, etaMax int, factor float64) (int, int) {
	lo := scaledEta(etaMin, factor)
	hi := scaledEta(etaMax, factor)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func multiplierFor(level domain.ServiceLevel) serviceMultiplier {
	if m, ok := serviceLevelMultipliers[level]; ok {
		return m
	}
	return serviceLevelMultipliers[domain.ServiceLevelStandard]
}
