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

const complianceEvaluationsCollection = "complianceEvaluations"

var referenceFields = map[domain.EvaluationReferenceKind]string{
	domain.EvaluationReferenceRFQ:   "rfqId",
	domain.EvaluationReferenceQuote: "quoteId",
	domain.EvaluationReferenceOrder: "orderId",
}

type evaluationInputDocument struct {
	DestinationCountry string   `firestore:"destinationCountry"`
	ProductCategory    string   `firestore:"productCategory"`
	DeclaredValueUSD   float64  `firestore:"declaredValueUsd"`
	WeightKg           float64  `firestore:"weightKg"`
	Certifications     []string `firestore:"certifications"`
}

type evaluationResultDocument struct {
	RequiredDocs          []string `firestore:"requiredDocs"`
	Warnings              []string `firestore:"warnings"`
	Flags                 []string `firestore:"flags"`
	DisclaimerText        string   `firestore:"disclaimerText"`
	AppliedRuleIDs        []string `firestore:"appliedRuleIds"`
	MissingCertifications []string `firestore:"missingCertifications"`
	ComplianceLevel       string   `firestore:"complianceLevel"`
}

type complianceEvaluationDocument struct {
	RFQID       string                   `firestore:"rfqId,omitempty"`
	QuoteID     string                   `firestore:"quoteId,omitempty"`
	OrderID     string                   `firestore:"orderId,omitempty"`
	Input       evaluationInputDocument  `firestore:"input"`
	Result      evaluationResultDocument `firestore:"result"`
	EvaluatedBy string                   `firestore:"evaluatedBy"`
	CreatedAt   time.Time                `firestore:"createdAt"`
}

var evaluationCodec = pfirestore.Codec[domain.ComplianceEvaluation, complianceEvaluationDocument]{
	Encode: func(e domain.ComplianceEvaluation) complianceEvaluationDocument {
		return complianceEvaluationDocument{
			RFQID:   e.RFQID,
			QuoteID: e.QuoteID,
			OrderID: e.OrderID,
			Input: evaluationInputDocument{
				DestinationCountry: e.Input.DestinationCountry,
				ProductCategory:    e.Input.ProductCategory,
				DeclaredValueUSD:   e.Input.DeclaredValueUSD,
				WeightKg:           e.Input.WeightKg,
				Certifications:     nonNil(e.Input.Certifications),
			},
			Result: evaluationResultDocument{
				RequiredDocs:          nonNil(e.Result.RequiredDocs),
				Warnings:              nonNil(e.Result.Warnings),
				Flags:                 nonNil(e.Result.Flags),
				DisclaimerText:        e.Result.DisclaimerText,
				AppliedRuleIDs:        nonNil(e.Result.AppliedRuleIDs),
				MissingCertifications: nonNil(e.Result.MissingCertifications),
				ComplianceLevel:       string(e.Result.ComplianceLevel),
			},
			EvaluatedBy: e.EvaluatedBy,
			CreatedAt:   e.CreatedAt.UTC(),
		}
	},
	Decode: func(id string, doc complianceEvaluationDocument) domain.ComplianceEvaluation {
		return domain.ComplianceEvaluation{
			ID:      id,
			RFQID:   doc.RFQID,
			QuoteID: doc.QuoteID,
			OrderID: doc.OrderID,
			Input: domain.ComplianceEvaluationInput{
				DestinationCountry: doc.Input.DestinationCountry,
				ProductCategory:    doc.Input.ProductCategory,
				DeclaredValueUSD:   doc.Input.DeclaredValueUSD,
				WeightKg:           doc.Input.WeightKg,
				Certifications:     doc.Input.Certifications,
			},
			Result: domain.ComplianceEvaluationResult{
				RequiredDocs:          doc.Result.RequiredDocs,
				Warnings:              doc.Result.Warnings,
				Flags:                 doc.Result.Flags,
				DisclaimerText:        doc.Result.DisclaimerText,
				AppliedRuleIDs:        doc.Result.AppliedRuleIDs,
				MissingCertifications: doc.Result.MissingCertifications,
				ComplianceLevel:       domain.ComplianceLevel(doc.Result.ComplianceLevel),
			},
			EvaluatedBy: doc.EvaluatedBy,
			CreatedAt:   doc.CreatedAt.UTC(),
		}
	},
}

// ComplianceEvaluationRepository stores audit snapshots in the complianceEvaluations collection.
type ComplianceEvaluationRepository struct {
	evaluations *pfirestore.Collection[domain.ComplianceEvaluation, complianceEvaluationDocument]
}

var _ repositories.ComplianceEvaluationRepository = (*ComplianceEvaluationRepository)(nil)

// NewComplianceEvaluationRepository constructs a Firestore-backed audit repository.
func NewComplianceEvaluationRepository(provider *pfirestore.Provider) (*ComplianceEvaluationRepository, error) {
	if provider == nil {
		return nil, errors.New("compliance evaluation repository: firestore provider is required")
	}
	return &ComplianceEvaluationRepository{
		evaluations: pfirestore.NewCollection(provider, complianceEvaluationsCollection, evaluationCodec),
	}, nil
}

func (r *ComplianceEvaluationRepository) Insert(ctx context.Context, evaluation domain.ComplianceEvaluation) error {
	return r.evaluations.Create(ctx, evaluation.ID, evaluation)
}

// ListByReference filters on the reference field and orders in process so no composite index is required.
func (r *ComplianceEvaluationRepository) ListByReference(ctx context.Context, ref domain.EvaluationReference, offset domain.Offset) (domain.Page[domain.ComplianceEvaluation], error) {
	field, ok := referenceFields[ref.Kind]
	id := strings.TrimSpace(ref.ID)
	if !ok || id == "" {
		return domain.SlicePage[domain.ComplianceEvaluation](nil, offset), nil
	}
	evaluations, err := r.evaluations.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", id)
	})
	if err != nil {
		return domain.Page[domain.ComplianceEvaluation]{}, err
	}
	repositories.SortEvaluationsNewestFirst(evaluations)
	return domain.SlicePage(evaluations, offset), nil
}
