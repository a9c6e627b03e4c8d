package service

import (
	"context"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

type WeightsService interface {
	ScoringWeights(ctx context.Context) (model.ScoringWeights, error)
	UpdateScoringWeights(ctx context.Context, weights model.ScoringWeights) error
}

func NewWeightsService(repo model.WeightsRepository, dispatcher domain.EventDispatcher) WeightsService {
	return &weightsService{repo: repo, dispatcher: dispatcher}
}

type weightsService struct {
	repo       model.WeightsRepository
	dispatcher domain.EventDispatcher
}

func (s *weightsService) ScoringWeights(ctx context.Context) (model.ScoringWeights, error) {
	return s.repo.Get(ctx)
}

// UpdateScoringWeights rejects weights not summing to 100 before they reach the repository.
func (s *weightsService) UpdateScoringWeights(ctx context.Context, weights model.ScoringWeights) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, weights); err != nil {
		return err
	}

	_ = s.dispatcher.Dispatch(model.ScoringWeightsUpdated{Weights: weights})
	return nil
}
