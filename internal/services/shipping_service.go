package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/platform/geo"
	"github.com/matcha-bridge/api/internal/platform/metrics"
	"github.com/matcha-bridge/api/internal/repositories"
	"github.com/matcha-bridge/api/internal/shipping"
)

// ErrShippingInvalidInput indicates the estimate request failed validation.
var ErrShippingInvalidInput = errors.New("shipping: invalid input")

// ErrShippingRFQNotFound indicates the referenced RFQ does not exist.
var ErrShippingRFQNotFound = errors.New("shipping: rfq not found")

// ErrShippingUnavailable indicates the RFQ store could not be read.
var ErrShippingUnavailable = errors.New("shipping: service unavailable")

// Upper bounds on estimate inputs. Carrier cost arithmetic stays finite below them.
const (
	maxEstimateWeightKg = 10000.0
	maxEstimateSideCm   = 1000.0
	maxDeclaredValueUSD = 100_000_000.0
)

// ShippingServiceDeps wires the carrier calculator and the RFQ reader.
type ShippingServiceDeps struct {
	// Calculator defaults to the production carriers when nil.
	Calculator *shipping.Calculator
	// RFQs is required for weight derivation only.
	RFQs    repositories.RFQRepository
	Metrics *metrics.Metrics
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type shippingService struct {
	calculator *shipping.Calculator
	rfqs       repositories.RFQRepository
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewShippingService constructs the estimate service.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	calculator := deps.Calculator
	if calculator == nil {
		var err error
		calculator, err = shipping.NewCalculator(shipping.DefaultCarriers()...)
		if err != nil {
			return nil, err
		}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		calculator: calculator,
		rfqs:       deps.RFQs,
		metrics:    deps.Metrics,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Estimate validates params and returns every carrier option sorted by minimum cost.
func (s *shippingService) Estimate(ctx context.Context, params EstimateParams) (ShippingQuote, error) {
	return s.estimate(ctx, params, nil)
}

func (s *shippingService) estimate(ctx context.Context, params EstimateParams, breakdown *RFQWeight) (ShippingQuote, error) {
	start := time.Now()
	normalised, err := normaliseEstimateParams(params)
	if err != nil {
		s.metrics.ObserveEstimate("invalid", 0, err, start)
		return ShippingQuote{}, err
	}

	estimates, err := s.calculator.Estimate(ctx, normalised)
	s.metrics.ObserveEstimate(string(normalised.ServiceLevel), len(estimates), err, start)
	if err != nil {
		return ShippingQuote{}, err
	}
	if len(estimates) == 0 {
		s.logger(ctx, "shipping.no_carrier_options", map[string]any{
			"origin":      normalised.OriginCountry,
			"destination": normalised.DestinationCountry,
			"weightKg":    normalised.WeightKg,
		})
	}

	return ShippingQuote{
		Estimates:       estimates,
		WeightKg:        normalised.WeightKg,
		Origin:          normalised.OriginCountry,
		Destination:     normalised.DestinationCountry,
		ServiceLevel:    normalised.ServiceLevel,
		WeightBreakdown: breakdown,
		CalculatedAt:    s.now(),
	}, nil
}

// CalculateRFQWeight sums the net weight of the RFQ's line items plus the packing allowance.
func (s *shippingService) CalculateRFQWeight(ctx context.Context, rfqID string) (RFQWeight, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return RFQWeight{}, err
	}
	weight := shipping.RFQWeight(rfq)
	if weight.SkippedItems > 0 {
		s.logger(ctx, "shipping.rfq_items_skipped", map[string]any{
			"rfqId":   rfq.ID,
			"skipped": weight.SkippedItems,
		})
	}
	return weight, nil
}

// EstimateForRFQ quotes the RFQ's derived weight. The destination defaults to the RFQ's.
func (s *shippingService) EstimateForRFQ(ctx context.Context, rfqID string, params EstimateParams) (ShippingQuote, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return ShippingQuote{}, err
	}
	weight := shipping.RFQWeight(rfq)
	if weight.TotalWeightKg <= 0 {
		return ShippingQuote{}, fmt.Errorf("%w: rfq %s has no weighable line items", ErrShippingInvalidInput, rfq.ID)
	}

	params.WeightKg = weight.TotalWeightKg
	if strings.TrimSpace(params.DestinationCountry) == "" {
		params.DestinationCountry = rfq.DestinationCountry
	}
	return s.estimate(ctx, params, &weight)
}

func (s *shippingService) Carriers() []CarrierDescriptor {
	return s.calculator.Carriers()
}

func (s *shippingService) loadRFQ(ctx context.Context, rfqID string) (domain.RFQ, error) {
	id := strings.TrimSpace(rfqID)
	if id == "" {
		return domain.RFQ{}, fmt.Errorf("%w: rfq id is required", ErrShippingInvalidInput)
	}
	if s.rfqs == nil {
		return domain.RFQ{}, ErrShippingUnavailable
	}
	rfq, err := s.rfqs.FindByID(ctx, id)
	if err == nil {
		return rfq, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.RFQ{}, err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return domain.RFQ{}, ErrShippingRFQNotFound
	}
	return domain.RFQ{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
}

func normaliseEstimateParams(params EstimateParams) (EstimateParams, error) {
	origin, ok := geo.NormalizeCountry(params.OriginCountry)
	if !ok {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "originCountry", "unknown origin country %q", params.OriginCountry)
	}
	destination, ok := geo.NormalizeCountry(params.DestinationCountry)
	if !ok {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "destinationCountry", "unknown destination country %q", params.DestinationCountry)
	}
	if !finite(params.WeightKg) || params.WeightKg <= 0 {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "weightKg", "weight must be greater than zero")
	}
	if params.WeightKg > maxEstimateWeightKg {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "weightKg", "weight must not exceed %.0fkg", maxEstimateWeightKg)
	}
	dimensions := []struct {
		name  string
		value float64
	}{
		{"lengthCm", params.LengthCm},
		{"widthCm", params.WidthCm},
		{"heightCm", params.HeightCm},
	}
	for _, dim := range dimensions {
		if !finite(dim.value) || dim.value <= 0 {
			return EstimateParams{}, invalidField(ErrShippingInvalidInput, dim.name, "%s must be greater than zero", dim.name)
		}
		if dim.value > maxEstimateSideCm {
			return EstimateParams{}, invalidField(ErrShippingInvalidInput, dim.name, "%s must not exceed %.0fcm", dim.name, maxEstimateSideCm)
		}
	}
	if !finite(params.DeclaredValueUSD) || params.DeclaredValueUSD < 0 {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "declaredValueUsd", "declared value must be zero or greater")
	}
	if params.DeclaredValueUSD > maxDeclaredValueUSD {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "declaredValueUsd", "declared value must not exceed %.0f USD", maxDeclaredValueUSD)
	}

	level := domain.ServiceLevel(strings.ToLower(strings.TrimSpace(string(params.ServiceLevel))))
	if level == "" {
		level = domain.ServiceLevelStandard
	}
	if !level.Valid() {
		return EstimateParams{}, invalidField(ErrShippingInvalidInput, "serviceLevel", "unknown service level %q", params.ServiceLevel)
	}

	return EstimateParams{
		OriginCountry:         origin,
		DestinationCountry:    destination,
		OriginPostalCode:      strings.TrimSpace(params.OriginPostalCode),
		DestinationPostalCode: strings.TrimSpace(params.DestinationPostalCode),
		WeightKg:              params.WeightKg,
		LengthCm:              params.LengthCm,
		WidthCm:               params.WidthCm,
		HeightCm:              params.HeightCm,
		DeclaredValueUSD:      params.DeclaredValueUSD,
		ServiceLevel:          level,
	}, nil
}
