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

const ruleColumns = `id, destination_country, product_category, min_declared_value_usd, min_weight_kg, max_weight_kg,
	required_certifications, required_docs, warnings, disclaimer_text, is_active, created_by, created_at, updated_at`

// ComplianceRuleRepository persists rules in the compliance_rules table.
type ComplianceRuleRepository struct {
	db *sql.DB
}

var _ repositories.ComplianceRuleRepository = (*ComplianceRuleRepository)(nil)

func (r *ComplianceRuleRepository) Insert(ctx context.Context, rule domain.ComplianceRule) error {
	query := `INSERT INTO compliance_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.DestinationCountry,
		rule.ProductCategory,
		nullableFloat(rule.MinDeclaredValueUSD),
		nullableFloat(rule.MinWeightKg),
		nullableFloat(rule.MaxWeightKg),
		textArray(rule.RequiredCertifications),
		textArray(rule.RequiredDocs),
		textArray(rule.Warnings),
		rule.DisclaimerText,
		rule.IsActive,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	return wrapError("postgres.complianceRules.insert", err)
}

func (r *ComplianceRuleRepository) Update(ctx context.Context, rule domain.ComplianceRule) error {
	query := `UPDATE compliance_rules SET
			destination_country = $2,
			product_category = $3,
			min_declared_value_usd = $4,
			min_weight_kg = $5,
			max_weight_kg = $6,
			required_certifications = $7,
			required_docs = $8,
			warnings = $9,
			disclaimer_text = $10,
			is_active = $11,
			updated_at = $12
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.DestinationCountry,
		rule.ProductCategory,
		nullableFloat(rule.MinDeclaredValueUSD),
		nullableFloat(rule.MinWeightKg),
		nullableFloat(rule.MaxWeightKg),
		textArray(rule.RequiredCertifications),
		textArray(rule.RequiredDocs),
		textArray(rule.Warnings),
		rule.DisclaimerText,
		rule.IsActive,
		rule.UpdatedAt,
	)
	if err != nil {
		return wrapError("postgres.complianceRules.update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapError("postgres.complianceRules.update", err)
	}
	if affected == 0 {
		return notFound("postgres.complianceRules.update", rule.ID)
	}
	return nil
}

func (r *ComplianceRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.ComplianceRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM compliance_rules WHERE id = $1`, strings.TrimSpace(ruleID))
	rule, err := scanRule(row)
	if err != nil {
		return domain.ComplianceRule{}, wrapError("postgres.complianceRules.find", err)
	}
	return rule, nil
}

func (r *ComplianceRuleRepository) FindActive(ctx context.Context, destinationCountry, productCategory string) ([]domain.ComplianceRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM compliance_rules
		WHERE is_active AND destination_country = $1 AND product_category = $2
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, destinationCountry, productCategory)
	if err != nil {
		return nil, wrapError("postgres.complianceRules.findActive", err)
	}
	defer rows.Close()
	return collectRules(rows, "postgres.complianceRules.findActive")
}

func (r *ComplianceRuleRepository) List(ctx context.Context, filter repositories.ComplianceRuleFilter) (domain.Page[domain.ComplianceRule], error) {
	offset := filter.Offset.Normalise()
	where, args := ruleFilterClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_rules`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.ComplianceRule]{}, wrapError("postgres.complianceRules.count", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM compliance_rules%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		ruleColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, offset.Take, offset.Skip)...)
	if err != nil {
		return domain.Page[domain.ComplianceRule]{}, wrapError("postgres.complianceRules.list", err)
	}
	defer rows.Close()

	rules, err := collectRules(rows, "postgres.complianceRules.list")
	if err != nil {
		return domain.Page[domain.ComplianceRule]{}, err
	}
	return domain.NewPage(rules, total, offset), nil
}

func ruleFilterClause(filter repositories.ComplianceRuleFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if country := strings.TrimSpace(filter.DestinationCountry); country != "" {
		args = append(args, strings.ToUpper(country))
		conditions = append(conditions, fmt.Sprintf("destination_country = $%d", len(args)))
	}
	if category := strings.TrimSpace(filter.ProductCategory); category != "" {
		args = append(args, "%"+escapeLike(category)+"%")
		conditions = append(conditions, fmt.Sprintf("product_category ILIKE $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (domain.ComplianceRule, error) {
	var (
		rule                           domain.ComplianceRule
		minValue, minWeight, maxWeight sql.NullFloat64
	)
	err := row.Scan(
		&rule.ID,
		&rule.DestinationCountry,
		&rule.ProductCategory,
		&minValue,
		&minWeight,
		&maxWeight,
		pq.Array(&rule.RequiredCertifications),
		pq.Array(&rule.RequiredDocs),
		pq.Array(&rule.Warnings),
		&rule.DisclaimerText,
		&rule.IsActive,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return domain.ComplianceRule{}, err
	}
	rule.MinDeclaredValueUSD = floatPtr(minValue)
	rule.MinWeightKg = floatPtr(minWeight)
	rule.MaxWeightKg = floatPtr(maxWeight)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return rule, nil
}

func collectRules(rows *sql.Rows, op string) ([]domain.ComplianceRule, error) {
	rules := make([]domain.ComplianceRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrapError(op, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}
	return rules, nil
}
