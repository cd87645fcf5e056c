package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matcha-bridge/api/internal/domain"
)

// Carrier is implemented by each rate adapter. Implementations must be pure functions of their input.
type Carrier interface {
	Descriptor() domain.CarrierDescriptor
	SupportsRoute(origin, destination string, weightKg float64) bool
	Estimate(params domain.EstimateParams) []domain.ShippingEstimate
}

// DefaultCarriers returns the adapters registered in production.
func DefaultCarriers() []Carrier {
	return []Carrier{ParcelCarrierA{}, ParcelCarrierB{}, FreightForwarder{}}
}

// Calculator fans estimate requests out to all registered carriers.
type Calculator struct {
	carriers []Carrier
}

// NewCalculator registers the supplied carriers. IDs must be unique.
func NewCalculator(carriers ...Carrier) (*Calculator, error) {
	if len(carriers) == 0 {
		return nil, errors.New("shipping: at least one carrier is required")
	}
	seen := make(map[string]struct{}, len(carriers))
	registered := make([]Carrier, 0, len(carriers))
	for _, carrier := range carriers {
		if carrier == nil {
			return nil, errors.New("shipping: nil carrier registration")
		}
		id := strings.TrimSpace(carrier.Descriptor().ID)
		if id == "" {
			return nil, errors.New("shipping: carrier id is required")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("shipping: duplicate carrier %q", id)
		}
		seen[id] = struct{}{}
		registered = append(registered, carrier)
	}
	return &Calculator{carriers: registered}, nil
}

// Carriers lists the registered carrier descriptors in registration order.
func (c *Calculator) Carriers() []domain.CarrierDescriptor {
	out := make([]domain.CarrierDescriptor, 0, len(c.carriers))
	for _, carrier := range c.carriers {
		out = append(out, carrier.Descriptor())
	}
	return out
}

// Estimate queries every carrier concurrently and returns their estimates sorted by CostMin.
// Carriers that do not serve the route contribute nothing.
func (c *Calculator) Estimate(ctx context.Context, params domain.EstimateParams) ([]domain.ShippingEstimate, error) {
	results := make([][]domain.ShippingEstimate, len(c.carriers))
	g, gctx := errgroup.WithContext(ctx)
	for i, carrier := range c.carriers {
		i, carrier := i, carrier
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("shipping: carrier %s: %v", carrier.Descriptor().ID, rec)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			if !carrier.SupportsRoute(params.OriginCountry, params.DestinationCountry, params.WeightKg) {
				return nil
			}
			results[i] = carrier.Estimate(params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]domain.ShippingEstimate, 0)
	for _, estimates := range results {
		merged = append(merged, estimates...)
	}
	SortEstimates(merged)
	return merged, nil
}

// SortEstimates orders estimates by ascending CostMin, breaking ties by carrier and service name.
func SortEstimates(estimates []domain.ShippingEstimate) {
	sort.SliceStable(estimates, func(i, j int) bool {
		a, b := estimates[i], estimates[j]
		if a.CostMin != b.CostMin {
			return a.CostMin < b.CostMin
		}
		if a.CarrierID != b.CarrierID {
			return a.CarrierID < b.CarrierID
		}
		return a.ServiceName < b.ServiceName
	})
}
