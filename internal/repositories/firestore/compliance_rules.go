package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/matcha-bridge/api/internal/domain"
	pfirestore "github.com/matcha-bridge/api/internal/platform/firestore"
	"github.com/matcha-bridge/api/internal/repositories"
)

const complianceRulesCollection = "complianceRules"

type complianceRuleDocument struct {
	DestinationCountry     string    `firestore:"destinationCountry"`
	ProductCategory        string    `firestore:"productCategory"`
	MinDeclaredValueUSD    *float64  `firestore:"minDeclaredValueUsd"`
	MinWeightKg            *float64  `firestore:"minWeightKg"`
	MaxWeightKg            *float64  `firestore:"maxWeightKg"`
	RequiredCertifications []string  `firestore:"requiredCertifications"`
	RequiredDocs           []string  `firestore:"requiredDocs"`
	Warnings               []string  `firestore:"warnings"`
	DisclaimerText         string    `firestore:"disclaimerText"`
	IsActive               bool      `firestore:"isActive"`
	CreatedBy              string    `firestore:"createdBy"`
	CreatedAt              time.Time `firestore:"createdAt"`
	UpdatedAt              time.Time `firestore:"updatedAt"`
}

var ruleCodec = pfirestore.Codec[domain.ComplianceRule, complianceRuleDocument]{
	Encode: func(rule domain.ComplianceRule) complianceRuleDocument {
		return complianceRuleDocument{
			DestinationCountry:     rule.DestinationCountry,
			ProductCategory:        rule.ProductCategory,
			MinDeclaredValueUSD:    rule.MinDeclaredValueUSD,
			MinWeightKg:            rule.MinWeightKg,
			MaxWeightKg:            rule.MaxWeightKg,
			RequiredCertifications: nonNil(rule.RequiredCertifications),
			RequiredDocs:           nonNil(rule.RequiredDocs),
			Warnings:               nonNil(rule.Warnings),
			DisclaimerText:         rule.DisclaimerText,
			IsActive:               rule.IsActive,
			CreatedBy:              rule.CreatedBy,
			CreatedAt:              rule.CreatedAt.UTC(),
			UpdatedAt:              rule.UpdatedAt.UTC(),
		}
	},
	Decode: func(id string, doc complianceRuleDocument) domain.ComplianceRule {
		return domain.ComplianceRule{
			ID:                     id,
			DestinationCountry:     doc.DestinationCountry,
			ProductCategory:        doc.ProductCategory,
			MinDeclaredValueUSD:    doc.MinDeclaredValueUSD,
			MinWeightKg:            doc.MinWeightKg,
			MaxWeightKg:            doc.MaxWeightKg,
			RequiredCertifications: doc.RequiredCertifications,
			RequiredDocs:           doc.RequiredDocs,
			Warnings:               doc.Warnings,
			DisclaimerText:         doc.DisclaimerText,
			IsActive:               doc.IsActive,
			CreatedBy:              doc.CreatedBy,
			CreatedAt:              doc.CreatedAt.UTC(),
			UpdatedAt:              doc.UpdatedAt.UTC(),
		}
	},
}

// ComplianceRuleRepository stores rules in the complianceRules collection.
type ComplianceRuleRepository struct {
	provider *pfirestore.Provider
	rules    *pfirestore.Collection[domain.ComplianceRule, complianceRuleDocument]
}

var _ repositories.ComplianceRuleRepository = (*ComplianceRuleRepository)(nil)

// NewComplianceRuleRepository constructs a Firestore-backed rule repository.
func NewComplianceRuleRepository(provider *pfirestore.Provider) (*ComplianceRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("compliance rule repository: firestore provider is required")
	}
	return &ComplianceRuleRepository{
		provider: provider,
		rules:    pfirestore.NewCollection(provider, complianceRulesCollection, ruleCodec),
	}, nil
}

func (r *ComplianceRuleRepository) Insert(ctx context.Context, rule domain.ComplianceRule) error {
	return r.rules.Create(ctx, rule.ID, rule)
}

// Update replaces an existing rule document, failing with not-found when it is absent.
func (r *ComplianceRuleRepository) Update(ctx context.Context, rule domain.ComplianceRule) error {
	ref, err := r.rules.Doc(ctx, rule.ID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("complianceRules.update", err)
		}
		if !snap.Exists() {
			return pfirestore.NotFound("complianceRules.update", "rule "+rule.ID+" not found")
		}
		return tx.Set(ref, ruleCodec.Encode(rule))
	})
}

func (r *ComplianceRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.ComplianceRule, error) {
	return r.rules.Get(ctx, strings.TrimSpace(ruleID))
}

func (r *ComplianceRuleRepository) FindActive(ctx context.Context, destinationCountry, productCategory string) ([]domain.ComplianceRule, error) {
	rules, err := r.rules.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).
			Where("destinationCountry", "==", destinationCountry).
			Where("productCategory", "==", productCategory)
	})
	if err != nil {
		return nil, err
	}
	repositories.SortRulesForEvaluation(rules)
	return rules, nil
}

// List pushes the equality filters to Firestore and applies the category substring match in process.
func (r *ComplianceRuleRepository) List(ctx context.Context, filter repositories.ComplianceRuleFilter) (domain.Page[domain.ComplianceRule], error) {
	rules, err := r.rules.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if country := strings.TrimSpace(filter.DestinationCountry); country != "" {
			q = q.Where("destinationCountry", "==", strings.ToUpper(country))
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.ComplianceRule]{}, err
	}

	matched := rules[:0]
	for _, rule := range rules {
		if repositories.MatchesRuleFilter(rule, filter) {
			matched = append(matched, rule)
		}
	}
	repositories.SortRulesNewestFirst(matched)
	return domain.SlicePage(matched, filter.Offset), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
