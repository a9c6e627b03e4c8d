package service

import (
	"quoteengine/pkg/quote/domain/model"
)

const (
	maxScore       = 100.0
	neutralScore   = 50.0
	maxRating      = 5.0
	weightsDivisor = 100.0
)

// PriceRange is the observed spread of prices and lead times across all
// offers for one line item.
type PriceRange struct {
	MinPriceCents   int64
	MaxPriceCents   int64
	MinDeliveryDays int
	MaxDeliveryDays int
}

// NewPriceRange returns the zero range for an empty offer set.
func NewPriceRange(offers []model.SupplierOffer) PriceRange {
	if len(offers) == 0 {
		return PriceRange{}
	}
	r := PriceRange{
		MinPriceCents:   offers[0].PriceCents,
		MaxPriceCents:   offers[0].PriceCents,
		MinDeliveryDays: offers[0].LeadTimeDays,
		MaxDeliveryDays: offers[0].LeadTimeDays,
	}
	for _, offer := range offers[1:] {
		r.MinPriceCents = min(r.MinPriceCents, offer.PriceCents)
		r.MaxPriceCents = max(r.MaxPriceCents, offer.PriceCents)
		r.MinDeliveryDays = min(r.MinDeliveryDays, offer.LeadTimeDays)
		r.MaxDeliveryDays = max(r.MaxDeliveryDays, offer.LeadTimeDays)
	}
	return r
}

// Score computes the 0-100 suitability of an offer for a line item.
func Score(offer model.SupplierOffer, performance model.SupplierPerformance, r PriceRange, weights model.ScoringWeights) (float64, model.ScoreBreakdown, error) {
	if err := weights.Validate(); err != nil {
		return 0, model.ScoreBreakdown{}, err
	}
	b := breakdown(offer, performance, r)
	return weightedScore(b, weights), b, nil
}

func breakdown(offer model.SupplierOffer, performance model.SupplierPerformance, r PriceRange) model.ScoreBreakdown {
	return model.ScoreBreakdown{
		Price:        inverseLinear(float64(offer.PriceCents), float64(r.MinPriceCents), float64(r.MaxPriceCents)),
		Rating:       ratingScore(performance),
		DeliveryTime: inverseLinear(float64(offer.LeadTimeDays), float64(r.MinDeliveryDays), float64(r.MaxDeliveryDays)),
		Reliability:  clamp(performance.ReliabilityPct),
	}
}

func weightedScore(b model.ScoreBreakdown, w model.ScoringWeights) float64 {
	total := b.Price*float64(w.Price) +
		b.Rating*float64(w.Rating) +
		b.DeliveryTime*float64(w.DeliveryTime) +
		b.Reliability*float64(w.Reliability)
	return clamp(total / weightsDivisor)
}

// inverseLinear maps min to 100 and max to 0. A degenerate range scores 100.
func inverseLinear(v, lo, hi float64) float64 {
	if hi <= lo {
		return maxScore
	}
	return clamp((hi - v) / (hi - lo) * maxScore)
}

// ratingScore gives suppliers without rated deals the neutral midpoint.
func ratingScore(p model.SupplierPerformance) float64 {
	if p.RatedDeals == 0 {
		return neutralScore
	}
	return clamp(p.AvgRating / maxRating * maxScore)
}

func clamp(v float64) float64 {
	return max(0, min(maxScore, v))
}
