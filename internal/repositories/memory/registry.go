// Package memory provides process-local repositories for local development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

// Registry bundles the in-memory repositories behind repositories.Registry.
type Registry struct {
	rules       *ComplianceRuleRepository
	evaluations *ComplianceEvaluationRepository
	rfqs        *RFQRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs empty repositories, optionally seeded with RFQs.
func NewRegistry(seed ...domain.RFQ) *Registry {
	return &Registry{
		rules:       NewComplianceRuleRepository(),
		evaluations: NewComplianceEvaluationRepository(),
		rfqs:        NewRFQRepository(seed...),
	}
}

func (r *Registry) ComplianceRules() repositories.ComplianceRuleRepository { return r.rules }

func (r *Registry) ComplianceEvaluations() repositories.ComplianceEvaluationRepository {
	return r.evaluations
}

func (r *Registry) RFQs() repositories.RFQRepository { return r.rfqs }

// RFQStore exposes the concrete RFQ store so callers can seed fixtures.
func (r *Registry) RFQStore() *RFQRepository { return r.rfqs }

func (r *Registry) Ping(context.Context) error { return nil }

func (r *Registry) Close(context.Context) error { return nil }

func notFound(op, id string) error {
	return repositories.NewStoreError(op, repositories.StoreErrorNotFound, "record "+id+" not found", nil)
}

func conflict(op, id string) error {
	return repositories.NewStoreError(op, repositories.StoreErrorConflict, "record "+id+" already exists", nil)
}

func contextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// RFQRepository stores RFQs keyed by ID.
type RFQRepository struct {
	mu   sync.RWMutex
	rfqs map[string]domain.RFQ
}

var _ repositories.RFQRepository = (*RFQRepository)(nil)

// NewRFQRepository constructs a store pre-populated with the supplied RFQs.
func NewRFQRepository(seed ...domain.RFQ) *RFQRepository {
	repo := &RFQRepository{rfqs: make(map[string]domain.RFQ, len(seed))}
	for _, rfq := range seed {
		repo.Put(rfq)
	}
	return repo
}

// Put inserts or replaces an RFQ.
func (r *RFQRepository) Put(rfq domain.RFQ) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rfqs[strings.TrimSpace(rfq.ID)] = cloneRFQ(rfq)
}

func (r *RFQRepository) FindByID(ctx context.Context, rfqID string) (domain.RFQ, error) {
	if err := contextErr(ctx); err != nil {
		return domain.RFQ{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rfq, ok := r.rfqs[strings.TrimSpace(rfqID)]
	if !ok {
		return domain.RFQ{}, notFound("memory.rfqs.find", rfqID)
	}
	return cloneRFQ(rfq), nil
}

func cloneRFQ(rfq domain.RFQ) domain.RFQ {
	items := make([]domain.RFQLineItem, len(rfq.LineItems))
	for i, item := range rfq.LineItems {
		if item.SKU != nil {
			sku := *item.SKU
			item.SKU = &sku
		}
		items[i] = item
	}
	rfq.LineItems = items
	return rfq
}
