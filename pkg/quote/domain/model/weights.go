package model

import (
	"context"

	"github.com/pkg/errors"
)

const weightsTotal = 100

type ScoringWeights struct {
	Price        int
	Rating       int
	DeliveryTime int
	Reliability  int
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Price:        40,
		Rating:       25,
		DeliveryTime: 20,
		Reliability:  15,
	}
}

func (w ScoringWeights) Sum() int {
	return w.Price + w.Rating + w.DeliveryTime + w.Reliability
}

func (w ScoringWeights) Validate() error {
	if w.Price < 0 || w.Rating < 0 || w.DeliveryTime < 0 || w.Reliability < 0 {
		return errors.Wrap(ErrInvalidConfiguration, "weights must not be negative")
	}
	if sum := w.Sum(); sum != weightsTotal {
		return errors.Wrapf(ErrInvalidConfiguration, "weights sum to %d, want %d", sum, weightsTotal)
	}
	return nil
}

// BonusPolicy is the capped step function of the cross-item bonus.
type BonusPolicy struct {
	StepPercent float64
	CapPercent  float64
}

func DefaultBonusPolicy() BonusPolicy {
	return BonusPolicy{StepPercent: 5, CapPercent: 20}
}

type WeightsRepository interface {
	// Get returns DefaultScoringWeights when nothing was stored yet.
	Get(ctx context.Context) (ScoringWeights, error)
	Save(ctx context.Context, weights ScoringWeights) error
}
