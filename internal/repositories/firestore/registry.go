// Package firestore implements the repositories on Cloud Firestore.
package firestore

import (
	"context"

	pfirestore "github.com/matcha-bridge/api/internal/platform/firestore"
	"github.com/matcha-bridge/api/internal/repositories"
)

// Registry wires the Firestore repositories around a shared provider.
type Registry struct {
	provider    *pfirestore.Provider
	rules       *ComplianceRuleRepository
	evaluations *ComplianceEvaluationRepository
	rfqs        *RFQRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository. Close releases the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	rules, err := NewComplianceRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	evaluations, err := NewComplianceEvaluationRepository(provider)
	if err != nil {
		return nil, err
	}
	rfqs, err := NewRFQRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, rules: rules, evaluations: evaluations, rfqs: rfqs}, nil
}

func (r *Registry) ComplianceRules() repositories.ComplianceRuleRepository { return r.rules }

func (r *Registry) ComplianceEvaluations() repositories.ComplianceEvaluationRepository {
	return r.evaluations
}

func (r *Registry) RFQs() repositories.RFQRepository { return r.rfqs }

// RFQStore exposes the concrete RFQ repository so fixtures can be written.
func (r *Registry) RFQStore() *RFQRepository { return r.rfqs }

func (r *Registry) Ping(ctx context.Context) error { return r.provider.Ping(ctx) }

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
