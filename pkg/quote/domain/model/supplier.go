package model

import (
	"context"

	"github.com/google/uuid"
)

// SupplierOffer is a supplier's price and lead time for one catalog unit.
type SupplierOffer struct {
	SupplierID    uuid.UUID
	CatalogUnitID uuid.UUID
	PriceCents    int64
	LeadTimeDays  int
}

// SupplierPerformance aggregates a supplier's completed deals.
type SupplierPerformance struct {
	SupplierID uuid.UUID
	// AvgRating is in [0, 5].
	AvgRating  float64
	RatedDeals int
	// ReliabilityPct is the share of jobs delivered on time, in [0, 100].
	ReliabilityPct float64
}

type SupplierRanking struct {
	SupplierID          uuid.UUID
	BaseScore           float64
	BonusPercent        float64
	TotalScore          float64
	OtherItemsCoverable int
	PriceCents          int64
	LeadTimeDays        int
	Breakdown           ScoreBreakdown
}

type ScoreBreakdown struct {
	Price        float64
	Rating       float64
	DeliveryTime float64
	Reliability  float64
}

// QuoteRanking ranks a single supplier for every line item of a quote.
type QuoteRanking struct {
	SupplierID      uuid.UUID
	Score           float64
	TotalCostCents  int64
	MaxDeliveryDays int
	ItemScores      map[uuid.UUID]float64
}

// SupplierCatalog is the read-only pricing catalog of supplier offers.
type SupplierCatalog interface {
	OffersForUnit(ctx context.Context, catalogUnitID uuid.UUID) ([]SupplierOffer, error)
	SupplierPerformance(ctx context.Context, supplierID uuid.UUID) (SupplierPerformance, error)
}

// PricingCatalog resolves customer-facing prices.
type PricingCatalog interface {
	// PricelistEntry returns ok=false when the unit is absent from the pricelist.
	PricelistEntry(ctx context.Context, pricelistID, catalogUnitID uuid.UUID) (priceCents int64, ok bool, err error)
	CatalogBasePrice(ctx context.Context, catalogUnitID uuid.UUID) (int64, error)
}
