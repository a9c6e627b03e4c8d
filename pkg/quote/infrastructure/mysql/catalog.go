package mysql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"quoteengine/pkg/quote/domain/model"
)

type sqlxOffer struct {
	SupplierID    uuid.UUID `db:"supplier_id"`
	CatalogUnitID uuid.UUID `db:"catalog_unit_id"`
	PriceCents    int64     `db:"price_cents"`
	LeadTimeDays  int       `db:"lead_time_days"`
}

type sqlxPerformance struct {
	AvgRating  sql.NullFloat64 `db:"avg_rating"`
	RatedDeals int             `db:"rated_deals"`
	Deals      int             `db:"deals"`
	OnTime     sql.NullInt64   `db:"on_time"`
}

// CatalogRepository serves both the supplier side and the customer pricing
// side of the catalog.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) OffersForUnit(ctx context.Context, catalogUnitID uuid.UUID) ([]model.SupplierOffer, error) {
	var rows []sqlxOffer
	err := r.db.SelectContext(ctx, &rows,
		`SELECT supplier_id, catalog_unit_id, price_cents, lead_time_days
		FROM supplier_offers WHERE catalog_unit_id = ? AND active = TRUE`, catalogUnitID)
	if err != nil {
		return nil, errors.Wrapf(err, "find offers for unit %s", catalogUnitID)
	}

	offers := make([]model.SupplierOffer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, model.SupplierOffer{
			SupplierID:    row.SupplierID,
			CatalogUnitID: row.CatalogUnitID,
			PriceCents:    row.PriceCents,
			LeadTimeDays:  row.LeadTimeDays,
		})
	}
	return offers, nil
}

// SupplierPerformance aggregates completed deals only. Unrated deals still
// count towards reliability.
func (r *CatalogRepository) SupplierPerformance(ctx context.Context, supplierID uuid.UUID) (model.SupplierPerformance, error) {
	var row sqlxPerformance
	err := r.db.GetContext(ctx, &row,
		`SELECT AVG(rating) AS avg_rating, COUNT(rating) AS rated_deals, COUNT(*) AS deals, SUM(delivered_on_time) AS on_time
		FROM supplier_deals WHERE supplier_id = ? AND completed_at IS NOT NULL`, supplierID)
	if err != nil {
		return model.SupplierPerformance{}, errors.Wrapf(err, "aggregate deals of supplier %s", supplierID)
	}

	perf := model.SupplierPerformance{
		SupplierID: supplierID,
		RatedDeals: row.RatedDeals,
	}
	if row.AvgRating.Valid {
		perf.AvgRating = row.AvgRating.Float64
	}
	if row.Deals > 0 {
		perf.ReliabilityPct = float64(row.OnTime.Int64) / float64(row.Deals) * 100
	}
	return perf, nil
}

func (r *CatalogRepository) PricelistEntry(ctx context.Context, pricelistID, catalogUnitID uuid.UUID) (int64, bool, error) {
	var price int64
	err := r.db.GetContext(ctx, &price,
		`SELECT price_cents FROM pricelist_entries WHERE pricelist_id = ? AND catalog_unit_id = ?`,
		pricelistID, catalogUnitID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "find pricelist %s entry for unit %s", pricelistID, catalogUnitID)
	}
	return price, true, nil
}

func (r *CatalogRepository) CatalogBasePrice(ctx context.Context, catalogUnitID uuid.UUID) (int64, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `SELECT base_price_cents FROM catalog_units WHERE id = ?`, catalogUnitID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(model.ErrPriceNotFound, "catalog unit %s", catalogUnitID)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "find base price of unit %s", catalogUnitID)
	}
	return price, nil
}
