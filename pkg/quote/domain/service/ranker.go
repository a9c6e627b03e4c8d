package service

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"quoteengine/pkg/quote/domain/model"
)

type RankingInput struct {
	Items       []model.LineItem
	Offers      OfferBook
	Performance map[uuid.UUID]model.SupplierPerformance
	Weights     model.ScoringWeights
}

// Ranker orders candidate suppliers. It is pure and safe for concurrent use.
type Ranker struct {
	policy model.BonusPolicy
}

func NewRanker(policy model.BonusPolicy) *Ranker {
	return &Ranker{policy: policy}
}

// RankForItem ranks every supplier offering the item's catalog unit by base
// score plus cross-item bonus.
func (r *Ranker) RankForItem(item model.LineItem, in RankingInput) ([]model.SupplierRanking, error) {
	if err := in.Weights.Validate(); err != nil {
		return nil, err
	}

	offers := in.Offers.OffersForUnit(item.CatalogUnitID)
	priceRange := NewPriceRange(offers)
	rankings := make([]model.SupplierRanking, 0, len(offers))
	for _, offer := range offers {
		b := breakdown(offer, in.performanceOf(offer.SupplierID), priceRange)
		base := weightedScore(b, in.Weights)
		bonus := CrossItemBonus(r.policy, offer.SupplierID, item, in.Items, in.Offers)
		rankings = append(rankings, model.SupplierRanking{
			SupplierID:          offer.SupplierID,
			BaseScore:           base,
			BonusPercent:        bonus.BonusPercent,
			TotalScore:          base + bonus.BonusPercent,
			OtherItemsCoverable: bonus.OtherItemsCoverable,
			PriceCents:          offer.PriceCents,
			LeadTimeDays:        offer.LeadTimeDays,
			Breakdown:           b,
		})
	}

	slices.SortStableFunc(rankings, func(a, b model.SupplierRanking) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PriceCents, b.PriceCents); c != 0 {
			return c
		}
		return compareIDs(a.SupplierID, b.SupplierID)
	})
	return rankings, nil
}

// RankForWholeQuote ranks suppliers able to fulfill every line item by the
// quantity-weighted average of their per-item base scores. No bonus applies.
func (r *Ranker) RankForWholeQuote(in RankingInput) ([]model.QuoteRanking, error) {
	if err := in.Weights.Validate(); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 || !in.anyItemOffered() {
		return []model.QuoteRanking{}, nil
	}

	ranges := make(map[uuid.UUID]PriceRange, len(in.Items))
	for _, item := range in.Items {
		if _, ok := ranges[item.CatalogUnitID]; !ok {
			ranges[item.CatalogUnitID] = NewPriceRange(in.Offers.OffersForUnit(item.CatalogUnitID))
		}
	}

	var rankings []model.QuoteRanking
	for _, supplierID := range in.Offers.Suppliers() {
		ranking, ok := r.rankSupplier(supplierID, in, ranges)
		if ok {
			rankings = append(rankings, ranking)
		}
	}
	if len(rankings) == 0 {
		return nil, model.ErrNoEligibleSupplier
	}

	slices.SortStableFunc(rankings, func(a, b model.QuoteRanking) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TotalCostCents, b.TotalCostCents); c != 0 {
			return c
		}
		return compareIDs(a.SupplierID, b.SupplierID)
	})
	return rankings, nil
}

func (r *Ranker) rankSupplier(supplierID uuid.UUID, in RankingInput, ranges map[uuid.UUID]PriceRange) (model.QuoteRanking, bool) {
	performance := in.performanceOf(supplierID)
	ranking := model.QuoteRanking{
		SupplierID: supplierID,
		ItemScores: make(map[uuid.UUID]float64, len(in.Items)),
	}

	var weighted, quantity float64
	for _, item := range in.Items {
		offer, ok := in.Offers.Offer(supplierID, item.CatalogUnitID)
		if !ok {
			return model.QuoteRanking{}, false
		}
		score := weightedScore(breakdown(offer, performance, ranges[item.CatalogUnitID]), in.Weights)
		ranking.ItemScores[item.ID] = score

		qty := float64(max(item.Quantity, 0))
		weighted += score * qty
		quantity += qty
		ranking.TotalCostCents += offer.PriceCents * int64(item.Quantity)
		ranking.MaxDeliveryDays = max(ranking.MaxDeliveryDays, offer.LeadTimeDays)
	}

	if quantity > 0 {
		ranking.Score = weighted / quantity
	} else {
		for _, score := range ranking.ItemScores {
			ranking.Score += score
		}
		ranking.Score /= float64(len(ranking.ItemScores))
	}
	return ranking, true
}

func (in RankingInput) performanceOf(supplierID uuid.UUID) model.SupplierPerformance {
	if p, ok := in.Performance[supplierID]; ok {
		return p
	}
	return model.SupplierPerformance{SupplierID: supplierID}
}

func (in RankingInput) anyItemOffered() bool {
	for _, item := range in.Items {
		if len(in.Offers.OffersForUnit(item.CatalogUnitID)) > 0 {
			return true
		}
	}
	return false
}
