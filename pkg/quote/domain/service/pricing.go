package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

type PriceResolution struct {
	CustomerPriceCents int64
	UnitPriceCents     int64
	IsManual           bool
}

func (r PriceResolution) apply(item *model.LineItem) {
	item.PriceCents = r.CustomerPriceCents
	item.UnitPriceCents = r.UnitPriceCents
}

// ResolvePrice prices a line item. A manual override wins outright; otherwise
// the pricelist's unit price, or the catalog base price when the unit is not
// on the pricelist, times the quantity.
func ResolvePrice(ctx context.Context, catalog model.PricingCatalog, item model.LineItem, pricelistID *uuid.UUID) (PriceResolution, error) {
	if item.IsManual() {
		return PriceResolution{
			CustomerPriceCents: *item.ManualPriceCents,
			UnitPriceCents:     item.UnitPriceCents,
			IsManual:           true,
		}, nil
	}

	unitPrice, err := unitPrice(ctx, catalog, item.CatalogUnitID, pricelistID)
	if err != nil {
		return PriceResolution{}, err
	}
	return PriceResolution{
		CustomerPriceCents: unitPrice * int64(item.Quantity),
		UnitPriceCents:     unitPrice,
	}, nil
}

func unitPrice(ctx context.Context, catalog model.PricingCatalog, unitID uuid.UUID, pricelistID *uuid.UUID) (int64, error) {
	if pricelistID != nil {
		price, ok, err := catalog.PricelistEntry(ctx, *pricelistID, unitID)
		if err != nil {
			return 0, err
		}
		if ok {
			return price, nil
		}
	}
	price, err := catalog.CatalogBasePrice(ctx, unitID)
	if err != nil {
		return 0, errors.Wrapf(err, "catalog unit %s", unitID)
	}
	return price, nil
}

type PricingService interface {
	ResolveLinePrice(ctx context.Context, quoteID, itemID uuid.UUID) (PriceResolution, error)
	// The mutations below are staff-only; customers never edit line items.
	SwitchPricelist(ctx context.Context, quoteID uuid.UUID, pricelistID *uuid.UUID, actor model.Actor) (*model.Quote, error)
	SetManualPrice(ctx context.Context, quoteID, itemID uuid.UUID, priceCents int64, actor model.Actor) (*model.Quote, error)
	ResetManualPrice(ctx context.Context, quoteID, itemID uuid.UUID, actor model.Actor) (*model.Quote, error)
}

func NewPricingService(repo model.QuoteRepository, catalog model.PricingCatalog, dispatcher domain.EventDispatcher) PricingService {
	return &pricingService{repo: repo, catalog: catalog, dispatcher: dispatcher}
}

type pricingService struct {
	repo       model.QuoteRepository
	catalog    model.PricingCatalog
	dispatcher domain.EventDispatcher
}

func (s *pricingService) ResolveLinePrice(ctx context.Context, quoteID, itemID uuid.UUID) (PriceResolution, error) {
	quote, err := s.repo.Find(ctx, quoteID)
	if err != nil {
		return PriceResolution{}, err
	}
	idx, ok := quote.FindItem(itemID)
	if !ok {
		return PriceResolution{}, model.ErrLineItemNotFound
	}
	return ResolvePrice(ctx, s.catalog, quote.Items[idx], quote.PricelistID)
}

// SwitchPricelist reprices every automatically priced line. Manual lines
// are skipped and keep their override.
func (s *pricingService) SwitchPricelist(ctx context.Context, quoteID uuid.UUID, pricelistID *uuid.UUID, actor model.Actor) (*model.Quote, error) {
	var events []domain.Event
	quote, err := s.executeOnQuote(ctx, quoteID, actor, func(q *model.Quote) error {
		q.PricelistID = pricelistID
		repriced := 0
		for i := range q.Items {
			if q.Items[i].IsManual() {
				continue
			}
			event, err := s.reprice(ctx, q, i)
			if err != nil {
				return err
			}
			if event != nil {
				events = append(events, *event)
			}
			repriced++
		}
		events = append(events, model.PricelistSwitched{QuoteID: q.ID, PricelistID: pricelistID, Repriced: repriced})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatchEvents(events)
	return quote, nil
}

func (s *pricingService) SetManualPrice(ctx context.Context, quoteID, itemID uuid.UUID, priceCents int64, actor model.Actor) (*model.Quote, error) {
	if priceCents < 0 {
		return nil, model.ErrNegativePrice
	}
	var events []domain.Event
	quote, err := s.executeOnItem(ctx, quoteID, itemID, actor, func(q *model.Quote, idx int) error {
		q.Items[idx].ManualPriceCents = &priceCents
		event, err := s.reprice(ctx, q, idx)
		if err != nil {
			return err
		}
		if event != nil {
			events = append(events, *event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatchEvents(events)
	return quote, nil
}

// ResetManualPrice clears the override and re-resolves from the current pricelist.
func (s *pricingService) ResetManualPrice(ctx context.Context, quoteID, itemID uuid.UUID, actor model.Actor) (*model.Quote, error) {
	var events []domain.Event
	quote, err := s.executeOnItem(ctx, quoteID, itemID, actor, func(q *model.Quote, idx int) error {
		q.Items[idx].ManualPriceCents = nil
		event, err := s.reprice(ctx, q, idx)
		if err != nil {
			return err
		}
		if event != nil {
			events = append(events, *event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatchEvents(events)
	return quote, nil
}

func (s *pricingService) reprice(ctx context.Context, q *model.Quote, idx int) (*model.LinePriceChanged, error) {
	item := &q.Items[idx]
	resolution, err := ResolvePrice(ctx, s.catalog, *item, q.PricelistID)
	if err != nil {
		return nil, err
	}
	oldPrice := item.PriceCents
	resolution.apply(item)
	if oldPrice == item.PriceCents {
		return nil, nil
	}
	return &model.LinePriceChanged{
		QuoteID:       q.ID,
		LineItemID:    item.ID,
		OldPriceCents: oldPrice,
		NewPriceCents: item.PriceCents,
		IsManual:      resolution.IsManual,
	}, nil
}

func (s *pricingService) executeOnItem(ctx context.Context, quoteID, itemID uuid.UUID, actor model.Actor, action func(q *model.Quote, idx int) error) (*model.Quote, error) {
	return s.executeOnQuote(ctx, quoteID, actor, func(q *model.Quote) error {
		idx, ok := q.FindItem(itemID)
		if !ok {
			return model.ErrLineItemNotFound
		}
		return action(q, idx)
	})
}

// executeOnQuote applies a staff pricing change to a draft and stores it
// under the optimistic lock.
func (s *pricingService) executeOnQuote(ctx context.Context, quoteID uuid.UUID, actor model.Actor, action func(q *model.Quote) error) (*model.Quote, error) {
	if !actor.IsStaff() {
		return nil, errors.Wrapf(model.ErrNotAuthorized, "pricing change by %s", actor.Kind)
	}
	quote, err := s.repo.Find(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != model.Draft {
		return nil, model.ErrQuoteCannotBeModified
	}

	if err := action(quote); err != nil {
		return nil, err
	}
	quote.RecalculateTotal()
	quote.LockVersion++
	quote.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *pricingService) dispatchEvents(events []domain.Event) {
	for _, event := range events {
		_ = s.dispatcher.Dispatch(event)
	}
}
