package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

const evaluationColumns = `id, rfq_id, quote_id, order_id, destination_country, product_category, declared_value_usd,
	weight_kg, certifications, required_docs, warnings, flags, disclaimer_text, applied_rule_ids,
	missing_certifications, compliance_level, evaluated_by, created_at`

var referenceColumns = map[domain.EvaluationReferenceKind]string{
	domain.EvaluationReferenceRFQ:   "rfq_id",
	domain.EvaluationReferenceQuote: "quote_id",
	domain.EvaluationReferenceOrder: "order_id",
}

// ComplianceEvaluationRepository persists the audit trail in compliance_evaluations.
type ComplianceEvaluationRepository struct {
	db *sql.DB
}

var _ repositories.ComplianceEvaluationRepository = (*ComplianceEvaluationRepository)(nil)

func (r *ComplianceEvaluationRepository) Insert(ctx context.Context, evaluation domain.ComplianceEvaluation) error {
	query := `INSERT INTO compliance_evaluations (` + evaluationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	in, res := evaluation.Input, evaluation.Result
	_, err := r.db.ExecContext(ctx, query,
		evaluation.ID,
		nullableText(evaluation.RFQID),
		nullableText(evaluation.QuoteID),
		nullableText(evaluation.OrderID),
		in.DestinationCountry,
		in.ProductCategory,
		in.DeclaredValueUSD,
		in.WeightKg,
		textArray(in.Certifications),
		textArray(res.RequiredDocs),
		textArray(res.Warnings),
		textArray(res.Flags),
		res.DisclaimerText,
		textArray(res.AppliedRuleIDs),
		textArray(res.MissingCertifications),
		string(res.ComplianceLevel),
		evaluation.EvaluatedBy,
		evaluation.CreatedAt,
	)
	return wrapError("postgres.complianceEvaluations.insert", err)
}

func (r *ComplianceEvaluationRepository) ListByReference(ctx context.Context, ref domain.EvaluationReference, offset domain.Offset) (domain.Page[domain.ComplianceEvaluation], error) {
	offset = offset.Normalise()
	column, ok := referenceColumns[ref.Kind]
	id := strings.TrimSpace(ref.ID)
	if !ok || id == "" {
		return domain.NewPage[domain.ComplianceEvaluation](nil, 0, offset), nil
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM compliance_evaluations WHERE %s = $1`, column)
	if err := r.db.QueryRowContext(ctx, countQuery, id).Scan(&total); err != nil {
		return domain.Page[domain.ComplianceEvaluation]{}, wrapError("postgres.complianceEvaluations.count", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM compliance_evaluations WHERE %s = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, evaluationColumns, column)
	rows, err := r.db.QueryContext(ctx, query, id, offset.Take, offset.Skip)
	if err != nil {
		return domain.Page[domain.ComplianceEvaluation]{}, wrapError("postgres.complianceEvaluations.list", err)
	}
	defer rows.Close()

	evaluations := make([]domain.ComplianceEvaluation, 0)
	for rows.Next() {
		evaluation, err := scanEvaluation(rows)
		if err != nil {
			return domain.Page[domain.ComplianceEvaluation]{}, wrapError("postgres.complianceEvaluations.list", err)
		}
		evaluations = append(evaluations, evaluation)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.ComplianceEvaluation]{}, wrapError("postgres.complianceEvaluations.list", err)
	}
	return domain.NewPage(evaluations, total, offset), nil
}

func scanEvaluation(row rowScanner) (domain.ComplianceEvaluation, error) {
	var (
		evaluation              domain.ComplianceEvaluation
		rfqID, quoteID, orderID sql.NullString
		level                   string
	)
	in, res := &evaluation.Input, &evaluation.Result
	err := row.Scan(
		&evaluation.ID,
		&rfqID,
		&quoteID,
		&orderID,
		&in.DestinationCountry,
		&in.ProductCategory,
		&in.DeclaredValueUSD,
		&in.WeightKg,
		pq.Array(&in.Certifications),
		pq.Array(&res.RequiredDocs),
		pq.Array(&res.Warnings),
		pq.Array(&res.Flags),
		&res.DisclaimerText,
		pq.Array(&res.AppliedRuleIDs),
		pq.Array(&res.MissingCertifications),
		&level,
		&evaluation.EvaluatedBy,
		&evaluation.CreatedAt,
	)
	if err != nil {
		return domain.ComplianceEvaluation{}, err
	}
	evaluation.RFQID = rfqID.String
	evaluation.QuoteID = quoteID.String
	evaluation.OrderID = orderID.String
	res.ComplianceLevel = domain.ComplianceLevel(level)
	evaluation.CreatedAt = evaluation.CreatedAt.UTC()
	return evaluation, nil
}
