package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quoteengine/pkg/quote/domain/model"
	domainservice "quoteengine/pkg/quote/domain/service"
)

const catalogFetchLimit = 8

type RecommendationService interface {
	RankSuppliersForItem(ctx context.Context, quoteID, itemID uuid.UUID) ([]model.SupplierRanking, error)
	RankSuppliersForQuote(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteRanking, error)
	// SelectSupplier assigns a ranked supplier to a line item. The supplier
	// must have a catalog offer for the item's unit.
	SelectSupplier(ctx context.Context, quoteID, itemID uuid.UUID, choice SupplierChoice, actor model.Actor) (*model.SupplierAssignment, error)
}

// SupplierChoice picks a supplier for a line item. Cost and delivery default
// to the supplier's catalog offer; staff may override them for a negotiated deal.
type SupplierChoice struct {
	SupplierID        uuid.UUID
	SupplierCostCents *int64
	DeliveryDays      *int
}

func NewRecommendationService(
	quotes domainservice.QuoteService,
	catalog model.SupplierCatalog,
	weights model.WeightsRepository,
	ranker *domainservice.Ranker,
) RecommendationService {
	return &recommendationService{
		quotes:  quotes,
		catalog: catalog,
		weights: weights,
		ranker:  ranker,
	}
}

type recommendationService struct {
	quotes  domainservice.QuoteService
	catalog model.SupplierCatalog
	weights model.WeightsRepository
	ranker  *domainservice.Ranker
}

func (s *recommendationService) RankSuppliersForItem(ctx context.Context, quoteID, itemID uuid.UUID) ([]model.SupplierRanking, error) {
	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	idx, ok := quote.FindItem(itemID)
	if !ok {
		return nil, model.ErrLineItemNotFound
	}

	input, err := s.loadInput(ctx, quote)
	if err != nil {
		return nil, err
	}
	rankings, err := s.ranker.RankForItem(quote.Items[idx], input)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"quote": quoteID, "item": itemID}).Error("ranking aborted")
		return nil, err
	}
	return rankings, nil
}

func (s *recommendationService) RankSuppliersForQuote(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteRanking, error) {
	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	input, err := s.loadInput(ctx, quote)
	if err != nil {
		return nil, err
	}
	rankings, err := s.ranker.RankForWholeQuote(input)
	if err != nil {
		if !errors.Is(err, model.ErrNoEligibleSupplier) {
			log.WithError(err).WithField("quote", quoteID).Error("whole-quote ranking aborted")
		}
		return nil, err
	}
	return rankings, nil
}

func (s *recommendationService) SelectSupplier(ctx context.Context, quoteID, itemID uuid.UUID, choice SupplierChoice, actor model.Actor) (*model.SupplierAssignment, error) {
	quote, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	idx, ok := quote.FindItem(itemID)
	if !ok {
		return nil, model.ErrLineItemNotFound
	}

	offers, err := s.catalog.OffersForUnit(ctx, quote.Items[idx].CatalogUnitID)
	if err != nil {
		return nil, err
	}
	offer, ok := domainservice.NewOfferBook(offers).Offer(choice.SupplierID, quote.Items[idx].CatalogUnitID)
	if !ok {
		return nil, errors.Wrapf(model.ErrSupplierHasNoOffer, "supplier %s, line item %s", choice.SupplierID, itemID)
	}

	selection := domainservice.SupplierSelection{
		SupplierID:        choice.SupplierID,
		SupplierCostCents: offer.PriceCents * int64(quote.Items[idx].Quantity),
		DeliveryDays:      offer.LeadTimeDays,
	}
	if choice.SupplierCostCents != nil {
		selection.SupplierCostCents = *choice.SupplierCostCents
	}
	if choice.DeliveryDays != nil {
		selection.DeliveryDays = *choice.DeliveryDays
	}

	assignment, err := s.quotes.AssignSupplier(ctx, quoteID, itemID, selection, actor)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"quote":    quoteID,
		"item":     itemID,
		"supplier": choice.SupplierID,
	}).Info("supplier assigned")
	return assignment, nil
}

// loadInput reads weights, offers and performance. Weights are read once so a
// ranking never mixes two configurations.
func (s *recommendationService) loadInput(ctx context.Context, quote *model.Quote) (domainservice.RankingInput, error) {
	weights, err := s.weights.Get(ctx)
	if err != nil {
		return domainservice.RankingInput{}, err
	}

	units := make(map[uuid.UUID]struct{})
	for _, item := range quote.Items {
		units[item.CatalogUnitID] = struct{}{}
	}

	var (
		mu     sync.Mutex
		offers []model.SupplierOffer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFetchLimit)
	for unitID := range units {
		g.Go(func() error {
			unitOffers, err := s.catalog.OffersForUnit(gctx, unitID)
			if err != nil {
				return errors.Wrapf(err, "offers for unit %s", unitID)
			}
			mu.Lock()
			offers = append(offers, unitOffers...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domainservice.RankingInput{}, err
	}

	book := domainservice.NewOfferBook(offers)
	performance, err := s.loadPerformance(ctx, book.Suppliers())
	if err != nil {
		return domainservice.RankingInput{}, err
	}

	return domainservice.RankingInput{
		Items:       quote.Items,
		Offers:      book,
		Performance: performance,
		Weights:     weights,
	}, nil
}

func (s *recommendationService) loadPerformance(ctx context.Context, suppliers []uuid.UUID) (map[uuid.UUID]model.SupplierPerformance, error) {
	var mu sync.Mutex
	performance := make(map[uuid.UUID]model.SupplierPerformance, len(suppliers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFetchLimit)
	for _, supplierID := range suppliers {
		g.Go(func() error {
			p, err := s.catalog.SupplierPerformance(gctx, supplierID)
			if err != nil {
				return errors.Wrapf(err, "performance of supplier %s", supplierID)
			}
			mu.Lock()
			performance[supplierID] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return performance, nil
}
