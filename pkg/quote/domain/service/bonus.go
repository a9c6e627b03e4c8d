package service

import (
	"bytes"
	"slices"

	"github.com/google/uuid"

	"quoteengine/pkg/quote/domain/model"
)

// OfferBook holds the offers of every catalog unit referenced by a quote,
// one offer per supplier and unit, ordered by supplier id.
type OfferBook struct {
	byUnit     map[uuid.UUID][]model.SupplierOffer
	bySupplier map[uuid.UUID]map[uuid.UUID]model.SupplierOffer
}

// NewOfferBook keeps the cheapest offer (then the fastest) when a supplier
// quotes the same unit more than once.
func NewOfferBook(offers []model.SupplierOffer) OfferBook {
	book := OfferBook{
		byUnit:     make(map[uuid.UUID][]model.SupplierOffer),
		bySupplier: make(map[uuid.UUID]map[uuid.UUID]model.SupplierOffer),
	}
	for _, offer := range offers {
		units, ok := book.bySupplier[offer.SupplierID]
		if !ok {
			units = make(map[uuid.UUID]model.SupplierOffer)
			book.bySupplier[offer.SupplierID] = units
		}
		if existing, ok := units[offer.CatalogUnitID]; ok && !betterOffer(offer, existing) {
			continue
		}
		units[offer.CatalogUnitID] = offer
	}
	for _, units := range book.bySupplier {
		for unitID, offer := range units {
			book.byUnit[unitID] = append(book.byUnit[unitID], offer)
		}
	}
	for _, offers := range book.byUnit {
		slices.SortFunc(offers, func(a, b model.SupplierOffer) int {
			return compareIDs(a.SupplierID, b.SupplierID)
		})
	}
	return book
}

func (b OfferBook) OffersForUnit(unitID uuid.UUID) []model.SupplierOffer {
	return b.byUnit[unitID]
}

func (b OfferBook) Offer(supplierID, unitID uuid.UUID) (model.SupplierOffer, bool) {
	offer, ok := b.bySupplier[supplierID][unitID]
	return offer, ok
}

func (b OfferBook) IsEmpty() bool {
	return len(b.bySupplier) == 0
}

// Suppliers returns every supplier with at least one offer, ordered by id.
func (b OfferBook) Suppliers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.bySupplier))
	for id := range b.bySupplier {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

type Bonus struct {
	BonusPercent        float64
	OtherItemsCoverable int
}

// CrossItemBonus rewards supplierID for every other line item of the quote
// it also has an offer for. The result only depends on the inputs, never on
// which items were ranked before.
func CrossItemBonus(policy model.BonusPolicy, supplierID uuid.UUID, item model.LineItem, items []model.LineItem, book OfferBook) Bonus {
	coverable := 0
	for _, other := range items {
		if other.ID == item.ID {
			continue
		}
		if _, ok := book.Offer(supplierID, other.CatalogUnitID); ok {
			coverable++
		}
	}
	return Bonus{
		BonusPercent:        bonusPercent(policy, coverable),
		OtherItemsCoverable: coverable,
	}
}

func bonusPercent(policy model.BonusPolicy, coverable int) float64 {
	if coverable <= 0 || policy.StepPercent <= 0 {
		return 0
	}
	return min(float64(coverable)*policy.StepPercent, max(0, policy.CapPercent))
}

func betterOffer(a, b model.SupplierOffer) bool {
	if a.PriceCents != b.PriceCents {
		return a.PriceCents < b.PriceCents
	}
	return a.LeadTimeDays < b.LeadTimeDays
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
