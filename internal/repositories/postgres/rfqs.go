package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/repositories"
)

// RFQRepository reads RFQs joined with their line items and SKU weights.
type RFQRepository struct {
	db *sql.DB
}

var _ repositories.RFQRepository = (*RFQRepository)(nil)

func (r *RFQRepository) FindByID(ctx context.Context, rfqID string) (domain.RFQ, error) {
	id := strings.TrimSpace(rfqID)
	var rfq domain.RFQ
	err := r.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, destination_country, created_at, updated_at FROM rfqs WHERE id = $1`, id,
	).Scan(&rfq.ID, &rfq.BuyerID, &rfq.DestinationCountry, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RFQ{}, notFound("postgres.rfqs.find", id)
		}
		return domain.RFQ{}, wrapError("postgres.rfqs.find", err)
	}
	rfq.CreatedAt = rfq.CreatedAt.UTC()
	rfq.UpdatedAt = rfq.UpdatedAt.UTC()

	rows, err := r.db.QueryContext(ctx, `
		SELECT li.id, li.product_id, li.sku_id, li.quantity, li.unit, s.id, s.net_weight_grams
		FROM rfq_line_items li
		LEFT JOIN skus s ON s.id = li.sku_id AND s.product_id = li.product_id
		WHERE li.rfq_id = $1
		ORDER BY li.position ASC`, id)
	if err != nil {
		return domain.RFQ{}, wrapError("postgres.rfqs.lineItems", err)
	}
	defer rows.Close()

	rfq.LineItems = make([]domain.RFQLineItem, 0)
	for rows.Next() {
		var (
			item   domain.RFQLineItem
			skuID  sql.NullString
			weight sql.NullFloat64
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.SKUID, &item.Quantity, &item.Unit, &skuID, &weight); err != nil {
			return domain.RFQ{}, wrapError("postgres.rfqs.lineItems", err)
		}
		if skuID.Valid && weight.Valid {
			item.SKU = &domain.SKUWeight{SKUID: skuID.String, NetWeightGrams: weight.Float64}
		}
		rfq.LineItems = append(rfq.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return domain.RFQ{}, wrapError("postgres.rfqs.lineItems", err)
	}
	return rfq, nil
}

// Insert writes an RFQ with its line items and any referenced SKU weights in one transaction.
func (r *RFQRepository) Insert(ctx context.Context, rfq domain.RFQ) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("postgres.rfqs.insert", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO rfqs (id, buyer_id, destination_country, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		rfq.ID, rfq.BuyerID, rfq.DestinationCountry, rfq.CreatedAt, rfq.UpdatedAt,
	); err != nil {
		return wrapError("postgres.rfqs.insert", err)
	}

	for position, item := range rfq.LineItems {
		if item.SKU != nil {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO skus (id, product_id, net_weight_grams) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET net_weight_grams = EXCLUDED.net_weight_grams`,
				item.SKU.SKUID, item.ProductID, item.SKU.NetWeightGrams,
			); err != nil {
				return wrapError("postgres.skus.upsert", err)
			}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO rfq_line_items (id, rfq_id, position, product_id, sku_id, quantity, unit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, rfq.ID, position, item.ProductID, item.SKUID, item.Quantity, item.Unit,
		); err != nil {
			return wrapError("postgres.rfqLineItems.insert", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return wrapError("postgres.rfqs.insert", err)
	}
	return nil
}
