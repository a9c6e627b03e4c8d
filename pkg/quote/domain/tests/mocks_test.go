package tests

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

var _ model.QuoteRepository = &mockQuoteRepository{}

type mockQuoteRepository struct {
	mu       sync.Mutex
	store    map[uuid.UUID]*model.Quote
	lineages map[uuid.UUID]uuid.UUID
	history  map[uuid.UUID][]model.TransitionRecord
}

func newMockQuoteRepository() *mockQuoteRepository {
	return &mockQuoteRepository{
		store:    make(map[uuid.UUID]*model.Quote),
		lineages: make(map[uuid.UUID]uuid.UUID),
		history:  make(map[uuid.UUID][]model.TransitionRecord),
	}
}

func (m *mockQuoteRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (m *mockQuoteRepository) Create(_ context.Context, quote *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[quote.ID]; exists {
		return errors.New("quote with this ID already exists")
	}
	m.store[quote.ID] = quote.Clone()
	m.lineages[quote.LineageID] = quote.ID
	return nil
}

func (m *mockQuoteRepository) Find(_ context.Context, id uuid.UUID) (*model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quote, ok := m.store[id]; ok {
		return quote.Clone(), nil
	}
	return nil, model.ErrQuoteNotFound
}

// Update writes the same columns as the SQL repository: quote pricing
// fields and line prices. Assignments are left as stored.
func (m *mockQuoteRepository) Update(_ context.Context, quote *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[quote.ID]
	if !ok {
		return model.ErrQuoteNotFound
	}
	if existing.LockVersion != quote.LockVersion-1 {
		return model.ErrOptimisticLock
	}
	existing.PricelistID = cloneID(quote.PricelistID)
	existing.AutoProduction = quote.AutoProduction
	existing.FinalValueCents = quote.FinalValueCents
	existing.LockVersion = quote.LockVersion
	existing.UpdatedAt = quote.UpdatedAt
	for _, item := range quote.Items {
		idx, ok := existing.FindItem(item.ID)
		if !ok {
			continue
		}
		stored := &existing.Items[idx]
		stored.UnitPriceCents = item.UnitPriceCents
		stored.PriceCents = item.PriceCents
		stored.ManualPriceCents = nil
		if item.ManualPriceCents != nil {
			price := *item.ManualPriceCents
			stored.ManualPriceCents = &price
		}
	}
	return nil
}

func (m *mockQuoteRepository) PersistTransition(_ context.Context, quote *model.Quote, record model.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[quote.ID]
	if !ok {
		return model.ErrQuoteNotFound
	}
	if existing.Status != record.FromStatus || existing.LockVersion != quote.LockVersion-1 {
		return model.ErrOptimisticLock
	}
	existing.Status = record.ToStatus
	existing.RejectionReason = nil
	if quote.RejectionReason != nil {
		reason := *quote.RejectionReason
		existing.RejectionReason = &reason
	}
	existing.LockVersion = quote.LockVersion
	existing.UpdatedAt = quote.UpdatedAt
	if record.Event == model.EventCancelSupplier {
		if err := cancelStored(existing, quote, record.ItemIDs); err != nil {
			return err
		}
	}
	m.history[quote.ID] = append(m.history[quote.ID], record)
	return nil
}

// cancelStored closes the history entries cancelled in quote and releases the
// stored items they were holding.
func cancelStored(existing, quote *model.Quote, itemIDs []uuid.UUID) error {
	for _, itemID := range itemIDs {
		idx, ok := quote.FindItem(itemID)
		if !ok {
			return model.ErrLineItemNotFound
		}
		storedIdx, ok := existing.FindItem(itemID)
		if !ok {
			return model.ErrLineItemNotFound
		}
		stored := &existing.Items[storedIdx]
		for _, a := range quote.Items[idx].History {
			if a.CancelledAt == nil {
				continue
			}
			for j := range stored.History {
				if stored.History[j].ID == a.ID && stored.History[j].CancelledAt == nil {
					stored.History[j] = a.Clone()
				}
			}
			if stored.Assignment != nil && stored.Assignment.ID == a.ID {
				stored.Assignment = nil
			}
		}
	}
	return nil
}

func (m *mockQuoteRepository) CreateRevision(_ context.Context, parent *model.Quote, revision *model.Quote, record model.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lineages[parent.LineageID] != parent.ID {
		return model.ErrOptimisticLock
	}
	existing, ok := m.store[parent.ID]
	if !ok {
		return model.ErrQuoteNotFound
	}
	if existing.Status != record.FromStatus || existing.LockVersion != parent.LockVersion-1 {
		return model.ErrOptimisticLock
	}
	existing.Status = model.Superseded
	existing.LockVersion = parent.LockVersion
	existing.UpdatedAt = parent.UpdatedAt
	m.store[revision.ID] = revision.Clone()
	m.lineages[parent.LineageID] = revision.ID
	m.history[parent.ID] = append(m.history[parent.ID], record)
	return nil
}

func (m *mockQuoteRepository) AssignSupplier(_ context.Context, quoteID uuid.UUID, assignment model.SupplierAssignment) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quote, ok := m.store[quoteID]
	if !ok {
		return 0, model.ErrQuoteNotFound
	}
	if quote.Status.IsTerminal() {
		return 0, model.ErrQuoteCannotBeModified
	}
	idx, ok := quote.FindItem(assignment.LineItemID)
	if !ok {
		return 0, model.ErrLineItemNotFound
	}
	item := &quote.Items[idx]
	if item.IsAssigned() {
		return 0, model.ErrAlreadyAssigned
	}
	current := assignment.Clone()
	item.Assignment = &current
	item.History = append(item.History, assignment.Clone())
	quote.LockVersion++
	quote.UpdatedAt = assignment.AssignedAt
	return quote.LockVersion, nil
}

func (m *mockQuoteRepository) History(_ context.Context, quoteID uuid.UUID) ([]model.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TransitionRecord(nil), m.history[quoteID]...), nil
}

// seed stores a quote directly, bypassing the service.
func (m *mockQuoteRepository) seed(quote *model.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[quote.ID] = quote.Clone()
	m.lineages[quote.LineageID] = quote.ID
}

func (m *mockQuoteRepository) stored(id uuid.UUID) *model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id].Clone()
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (m *mockQuoteRepository) current(lineageID uuid.UUID) []*model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current []*model.Quote
	for _, q := range m.store {
		if q.LineageID == lineageID && q.Status.IsCurrent() {
			current = append(current, q.Clone())
		}
	}
	return current
}

// interleavingRepository runs beforeWrite once, right before the next
// transition or revision reaches the store.
type interleavingRepository struct {
	*mockQuoteRepository
	beforeWrite func()
}

func (r *interleavingRepository) PersistTransition(ctx context.Context, quote *model.Quote, record model.TransitionRecord) error {
	r.interleave()
	return r.mockQuoteRepository.PersistTransition(ctx, quote, record)
}

func (r *interleavingRepository) CreateRevision(ctx context.Context, parent *model.Quote, revision *model.Quote, record model.TransitionRecord) error {
	r.interleave()
	return r.mockQuoteRepository.CreateRevision(ctx, parent, revision, record)
}

func (r *interleavingRepository) interleave() {
	if r.beforeWrite == nil {
		return
	}
	fn := r.beforeWrite
	r.beforeWrite = nil
	fn()
}

var _ model.PricingCatalog = &mockPricingCatalog{}

type mockPricingCatalog struct {
	basePrices map[uuid.UUID]int64
	pricelists map[uuid.UUID]map[uuid.UUID]int64
}

func newMockPricingCatalog() *mockPricingCatalog {
	return &mockPricingCatalog{
		basePrices: make(map[uuid.UUID]int64),
		pricelists: make(map[uuid.UUID]map[uuid.UUID]int64),
	}
}

func (m *mockPricingCatalog) PricelistEntry(_ context.Context, pricelistID, catalogUnitID uuid.UUID) (int64, bool, error) {
	price, ok := m.pricelists[pricelistID][catalogUnitID]
	return price, ok, nil
}

func (m *mockPricingCatalog) CatalogBasePrice(_ context.Context, catalogUnitID uuid.UUID) (int64, error) {
	price, ok := m.basePrices[catalogUnitID]
	if !ok {
		return 0, model.ErrPriceNotFound
	}
	return price, nil
}

var _ model.WeightsRepository = &mockWeightsRepository{}

type mockWeightsRepository struct {
	weights *model.ScoringWeights
}

func (m *mockWeightsRepository) Get(_ context.Context) (model.ScoringWeights, error) {
	if m.weights == nil {
		return model.DefaultScoringWeights(), nil
	}
	return *m.weights, nil
}

func (m *mockWeightsRepository) Save(_ context.Context, weights model.ScoringWeights) error {
	m.weights = &weights
	return nil
}

var _ domain.EventDispatcher = &mockEventDispatcher{}

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockEventDispatcher) Dispatch(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockEventDispatcher) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// newQuote builds a quote in the given status with one priced line item per
// unit price.
func newQuote(status model.QuoteStatus, unitPrices ...int64) *model.Quote {
	id := uuid.New()
	now := time.Now().UTC()
	quote := &model.Quote{
		ID:          id,
		LineageID:   id,
		CustomerID:  uuid.New(),
		Status:      status,
		Version:     1,
		LockVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, price := range unitPrices {
		quote.Items = append(quote.Items, model.LineItem{
			ID:             uuid.New(),
			QuoteID:        id,
			CatalogUnitID:  uuid.New(),
			Quantity:       1,
			UnitPriceCents: price,
			PriceCents:     price,
		})
	}
	quote.RecalculateTotal()
	return quote
}

// assign gives the item at idx a supplier directly.
func assign(quote *model.Quote, idx int, supplierID uuid.UUID) {
	a := model.SupplierAssignment{
		ID:                uuid.New(),
		LineItemID:        quote.Items[idx].ID,
		SupplierID:        supplierID,
		SupplierCostCents: 100,
		DeliveryDays:      3,
		AssignedBy:        uuid.New(),
		AssignedAt:        time.Now().UTC(),
	}
	current := a
	quote.Items[idx].Assignment = &current
	quote.Items[idx].History = append(quote.Items[idx].History, a)
}

func staff() model.Actor {
	return model.Actor{ID: uuid.New(), Kind: model.ActorStaff}
}

func customerOf(quote *model.Quote) model.Actor {
	return model.Actor{ID: quote.CustomerID, Kind: model.ActorCustomer}
}
