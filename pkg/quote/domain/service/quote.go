package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

type NewLineItem struct {
	CatalogUnitID uuid.UUID
	Quantity      int
}

type NewQuote struct {
	CustomerID     uuid.UUID
	PricelistID    *uuid.UUID
	AutoProduction bool
	Items          []NewLineItem
}

// TransitionRequest carries one lifecycle event. ExpectedStatus is the status
// the caller last observed; the transition is refused if it is stale.
type TransitionRequest struct {
	Event          model.QuoteEvent
	ExpectedStatus model.QuoteStatus
	Actor          model.Actor
	Reason         string
	// ItemIDs limits cancelSupplier to these items; empty means every assigned item.
	ItemIDs []uuid.UUID
}

type SupplierSelection struct {
	SupplierID        uuid.UUID
	SupplierCostCents int64
	DeliveryDays      int
}

type QuoteService interface {
	CreateQuote(ctx context.Context, actor model.Actor, q NewQuote) (*model.Quote, error)
	GetQuote(ctx context.Context, quoteID uuid.UUID) (*model.Quote, error)
	QuoteHistory(ctx context.Context, quoteID uuid.UUID) ([]model.TransitionRecord, error)
	TransitionQuote(ctx context.Context, quoteID uuid.UUID, req TransitionRequest) (*model.Quote, error)
	AssignSupplier(ctx context.Context, quoteID, itemID uuid.UUID, selection SupplierSelection, actor model.Actor) (*model.SupplierAssignment, error)
}

func NewQuoteService(repo model.QuoteRepository, catalog model.PricingCatalog, dispatcher domain.EventDispatcher) QuoteService {
	return &quoteService{repo: repo, catalog: catalog, dispatcher: dispatcher}
}

type quoteService struct {
	repo       model.QuoteRepository
	catalog    model.PricingCatalog
	dispatcher domain.EventDispatcher
}

func (s *quoteService) CreateQuote(ctx context.Context, actor model.Actor, q NewQuote) (*model.Quote, error) {
	if !actor.IsStaff() {
		return nil, model.ErrNotAuthorized
	}
	for _, item := range q.Items {
		if item.Quantity <= 0 {
			return nil, model.ErrInvalidQuantity
		}
	}

	quoteID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	quote := &model.Quote{
		ID:             quoteID,
		LineageID:      quoteID,
		CustomerID:     q.CustomerID,
		Status:         model.Draft,
		Version:        1,
		PricelistID:    q.PricelistID,
		AutoProduction: q.AutoProduction,
		LockVersion:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, newItem := range q.Items {
		itemID, err := s.repo.NextID()
		if err != nil {
			return nil, err
		}
		item := model.LineItem{
			ID:            itemID,
			QuoteID:       quoteID,
			CatalogUnitID: newItem.CatalogUnitID,
			Quantity:      newItem.Quantity,
		}
		resolution, err := ResolvePrice(ctx, s.catalog, item, q.PricelistID)
		if err != nil {
			return nil, err
		}
		resolution.apply(&item)
		quote.Items = append(quote.Items, item)
	}
	quote.RecalculateTotal()

	if err := s.repo.Create(ctx, quote); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.QuoteCreated{QuoteID: quoteID, CustomerID: q.CustomerID})
	return quote, nil
}

func (s *quoteService) GetQuote(ctx context.Context, quoteID uuid.UUID) (*model.Quote, error) {
	return s.repo.Find(ctx, quoteID)
}

func (s *quoteService) QuoteHistory(ctx context.Context, quoteID uuid.UUID) ([]model.TransitionRecord, error) {
	if _, err := s.repo.Find(ctx, quoteID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, quoteID)
}

func (s *quoteService) TransitionQuote(ctx context.Context, quoteID uuid.UUID, req TransitionRequest) (*model.Quote, error) {
	if req.ExpectedStatus == "" {
		return nil, model.ErrExpectedStatusRequired
	}

	quote, err := s.repo.Find(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != req.ExpectedStatus {
		return nil, errors.Wrapf(model.ErrOptimisticLock, "expected status %s, quote is %s", req.ExpectedStatus, quote.Status)
	}
	if !model.CanApply(quote.Status, req.Event) {
		return nil, errors.Wrapf(model.ErrInvalidTransition, "%s is not allowed from %s", req.Event, quote.Status)
	}
	if err := authorize(quote, req); err != nil {
		return nil, err
	}

	switch req.Event {
	case model.EventRevise:
		return s.revise(ctx, quote, req)
	case model.EventCancelSupplier:
		return s.cancelSupplier(ctx, quote, req)
	}

	if err := checkGuards(quote, req.Event); err != nil {
		return nil, err
	}
	to, err := model.NextStatus(quote.Status, req.Event, false)
	if err != nil {
		return nil, err
	}
	if req.Event == model.EventReject {
		reason := req.Reason
		quote.RejectionReason = &reason
	}

	record := s.newRecord(quote, req, to)
	if err := s.persistTransition(ctx, quote, record); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) AssignSupplier(ctx context.Context, quoteID, itemID uuid.UUID, selection SupplierSelection, actor model.Actor) (*model.SupplierAssignment, error) {
	if !actor.IsStaff() {
		return nil, model.ErrNotAuthorized
	}
	if selection.SupplierCostCents < 0 {
		return nil, model.ErrNegativePrice
	}

	quote, err := s.repo.Find(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !acceptsAssignment(quote.Status) {
		return nil, model.ErrQuoteCannotBeModified
	}
	idx, ok := quote.FindItem(itemID)
	if !ok {
		return nil, model.ErrLineItemNotFound
	}
	if quote.Items[idx].IsAssigned() {
		return nil, model.ErrAlreadyAssigned
	}

	assignmentID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}
	assignment := model.SupplierAssignment{
		ID:                assignmentID,
		LineItemID:        itemID,
		SupplierID:        selection.SupplierID,
		SupplierCostCents: selection.SupplierCostCents,
		DeliveryDays:      selection.DeliveryDays,
		AssignedBy:        actor.ID,
		AssignedAt:        time.Now().UTC(),
	}
	lockVersion, err := s.repo.AssignSupplier(ctx, quoteID, assignment)
	if err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.SupplierAssigned{
		QuoteID: quoteID, LineItemID: itemID, SupplierID: selection.SupplierID, LockVersion: lockVersion,
	})
	return &assignment, nil
}

// revise supersedes quote and creates the next version as an independent copy.
func (s *quoteService) revise(ctx context.Context, parent *model.Quote, req TransitionRequest) (*model.Quote, error) {
	revisionID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	revision := parent.Clone()
	revision.ID = revisionID
	parentID := parent.ID
	revision.ParentID = &parentID
	revision.Version = parent.Version + 1
	revision.Status = model.Draft
	revision.RejectionReason = nil
	revision.LockVersion = 1
	revision.CreatedAt = now
	revision.UpdatedAt = now
	for i := range revision.Items {
		if err := s.rebindItem(&revision.Items[i], revisionID); err != nil {
			return nil, err
		}
	}

	record := s.newRecord(parent, req, model.Superseded)
	parent.Status = model.Superseded
	parent.LockVersion++
	parent.UpdatedAt = now

	if err := s.repo.CreateRevision(ctx, parent, revision, record); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.QuoteTransitioned{
		QuoteID: parent.ID, CustomerID: parent.CustomerID, Event: req.Event, From: record.FromStatus, To: model.Superseded, Reason: req.Reason,
	})
	_ = s.dispatcher.Dispatch(model.QuoteRevised{
		ParentID: parent.ID, RevisionID: revisionID, LineageID: revision.LineageID, Version: revision.Version,
	})
	return revision, nil
}

// rebindItem gives a copied line item and its assignment records fresh
// identities under the new quote version.
func (s *quoteService) rebindItem(item *model.LineItem, quoteID uuid.UUID) error {
	itemID, err := s.repo.NextID()
	if err != nil {
		return err
	}
	item.ID = itemID
	item.QuoteID = quoteID

	rebound := false
	for j := range item.History {
		historyID, err := s.repo.NextID()
		if err != nil {
			return err
		}
		if item.Assignment != nil && item.History[j].ID == item.Assignment.ID && !rebound {
			item.Assignment.ID = historyID
			item.Assignment.LineItemID = itemID
			rebound = true
		}
		item.History[j].ID = historyID
		item.History[j].LineItemID = itemID
	}
	if item.Assignment != nil && !rebound {
		assignmentID, err := s.repo.NextID()
		if err != nil {
			return err
		}
		item.Assignment.ID = assignmentID
		item.Assignment.LineItemID = itemID
		item.History = append(item.History, *item.Assignment)
	}
	return nil
}

func (s *quoteService) cancelSupplier(ctx context.Context, quote *model.Quote, req TransitionRequest) (*model.Quote, error) {
	targets, err := cancellationTargets(quote, req.ItemIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cancelled := make([]model.SupplierAssignment, 0, len(targets))
	for _, idx := range targets {
		item := &quote.Items[idx]
		assignment := *item.Assignment
		assignment.CancelledAt = &now
		assignment.CancelReason = req.Reason
		for j := range item.History {
			if item.History[j].ID == assignment.ID {
				item.History[j] = assignment.Clone()
			}
		}
		item.Assignment = nil
		cancelled = append(cancelled, assignment)
	}

	to, err := model.NextStatus(quote.Status, req.Event, quote.AllUnassigned())
	if err != nil {
		return nil, err
	}
	record := s.newRecord(quote, req, to)
	record.ItemIDs = record.ItemIDs[:0]
	for _, a := range cancelled {
		record.ItemIDs = append(record.ItemIDs, a.LineItemID)
	}

	if err := s.persistTransition(ctx, quote, record); err != nil {
		return nil, err
	}
	for _, a := range cancelled {
		_ = s.dispatcher.Dispatch(model.SupplierCancelled{
			QuoteID: quote.ID, LineItemID: a.LineItemID, SupplierID: a.SupplierID, Reason: req.Reason,
		})
	}
	return quote, nil
}

func (s *quoteService) newRecord(quote *model.Quote, req TransitionRequest, to model.QuoteStatus) model.TransitionRecord {
	return model.TransitionRecord{
		QuoteID:    quote.ID,
		Event:      req.Event,
		FromStatus: quote.Status,
		ToStatus:   to,
		ActorID:    req.Actor.ID,
		Reason:     req.Reason,
		ItemIDs:    append([]uuid.UUID(nil), req.ItemIDs...),
		At:         time.Now().UTC(),
	}
}

func (s *quoteService) persistTransition(ctx context.Context, quote *model.Quote, record model.TransitionRecord) error {
	quote.Status = record.ToStatus
	quote.LockVersion++
	quote.UpdatedAt = record.At
	if err := s.repo.PersistTransition(ctx, quote, record); err != nil {
		return err
	}

	_ = s.dispatcher.Dispatch(model.QuoteTransitioned{
		QuoteID: quote.ID, CustomerID: quote.CustomerID, Event: record.Event, From: record.FromStatus, To: record.ToStatus, Reason: record.Reason,
	})
	return nil
}

func authorize(quote *model.Quote, req TransitionRequest) error {
	switch req.Event {
	case model.EventApprove, model.EventReject:
		if req.Actor.IsCustomerOf(quote) || (req.Actor.IsStaff() && req.Actor.CanProxyApproval) {
			return nil
		}
	default:
		if req.Actor.IsStaff() {
			return nil
		}
	}
	return errors.Wrapf(model.ErrNotAuthorized, "%s by %s", req.Event, req.Actor.Kind)
}

func checkGuards(quote *model.Quote, event model.QuoteEvent) error {
	switch event {
	case model.EventSend:
		if len(quote.Items) == 0 {
			return model.ErrQuoteIsEmpty
		}
		for i := range quote.Items {
			if !quote.Items[i].IsPriced() {
				return errors.Wrapf(model.ErrLineItemUnpriced, "line item %s", quote.Items[i].ID)
			}
		}
	case model.EventStartProduction:
		if !quote.AutoProduction && !quote.AnyAssigned() {
			return model.ErrNoSupplierAssigned
		}
	}
	return nil
}

func cancellationTargets(quote *model.Quote, itemIDs []uuid.UUID) ([]int, error) {
	var targets []int
	if len(itemIDs) == 0 {
		for i := range quote.Items {
			if quote.Items[i].IsAssigned() {
				targets = append(targets, i)
			}
		}
		if len(targets) == 0 {
			return nil, model.ErrSupplierNotAssigned
		}
		return targets, nil
	}

	seen := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		idx, ok := quote.FindItem(id)
		if !ok {
			return nil, errors.Wrapf(model.ErrLineItemNotFound, "line item %s", id)
		}
		if !quote.Items[idx].IsAssigned() {
			return nil, errors.Wrapf(model.ErrSupplierNotAssigned, "line item %s", id)
		}
		targets = append(targets, idx)
	}
	return targets, nil
}

func acceptsAssignment(status model.QuoteStatus) bool {
	switch status {
	case model.Draft, model.Sent, model.Approved, model.InProduction:
		return true
	}
	return false
}
