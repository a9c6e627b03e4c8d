package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appservice "quoteengine/pkg/quote/application/service"
	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
	"quoteengine/pkg/quote/infrastructure/event"
	"quoteengine/pkg/quote/infrastructure/transport"
)

type stubQuotes struct {
	service.QuoteService
	quote *model.Quote
}

func (s *stubQuotes) GetQuote(_ context.Context, quoteID uuid.UUID) (*model.Quote, error) {
	if s.quote == nil || s.quote.ID != quoteID {
		return nil, model.ErrQuoteNotFound
	}
	return s.quote, nil
}

func (s *stubQuotes) TransitionQuote(_ context.Context, _ uuid.UUID, req service.TransitionRequest) (*model.Quote, error) {
	if req.ExpectedStatus != s.quote.Status {
		return nil, model.ErrOptimisticLock
	}
	if !model.CanApply(s.quote.Status, req.Event) {
		return nil, errors.Wrapf(model.ErrInvalidTransition, "%s from %s", req.Event, s.quote.Status)
	}
	next, err := model.NextStatus(s.quote.Status, req.Event, true)
	if err != nil {
		return nil, err
	}
	s.quote.Status = next
	return s.quote, nil
}

type stubRecommendations struct {
	appservice.RecommendationService
	offering map[uuid.UUID]bool
	choices  []appservice.SupplierChoice
}

func (s *stubRecommendations) RankSuppliersForQuote(context.Context, uuid.UUID) ([]model.QuoteRanking, error) {
	return nil, model.ErrNoEligibleSupplier
}

func (s *stubRecommendations) SelectSupplier(_ context.Context, _, itemID uuid.UUID, choice appservice.SupplierChoice, actor model.Actor) (*model.SupplierAssignment, error) {
	if !s.offering[choice.SupplierID] {
		return nil, model.ErrSupplierHasNoOffer
	}
	if len(s.choices) > 0 {
		return nil, model.ErrAlreadyAssigned
	}
	s.choices = append(s.choices, choice)
	assignment := &model.SupplierAssignment{ID: uuid.New(), LineItemID: itemID, SupplierID: choice.SupplierID, AssignedBy: actor.ID}
	if choice.SupplierCostCents != nil {
		assignment.SupplierCostCents = *choice.SupplierCostCents
	}
	return assignment, nil
}

type stubWeights struct {
	weights model.ScoringWeights
}

func (s *stubWeights) ScoringWeights(context.Context) (model.ScoringWeights, error) {
	return s.weights, nil
}

func (s *stubWeights) UpdateScoringWeights(_ context.Context, w model.ScoringWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.weights = w
	return nil
}

// memoryQuotes backs the real pricing service in these tests.
type memoryQuotes struct {
	model.QuoteRepository
	mu    sync.Mutex
	store map[uuid.UUID]*model.Quote
}

func (m *memoryQuotes) Find(_ context.Context, id uuid.UUID) (*model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.store[id]; ok {
		return q.Clone(), nil
	}
	return nil, model.ErrQuoteNotFound
}

func (m *memoryQuotes) Update(_ context.Context, quote *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store[quote.ID].LockVersion != quote.LockVersion-1 {
		return model.ErrOptimisticLock
	}
	m.store[quote.ID] = quote.Clone()
	return nil
}

func (m *memoryQuotes) stored(id uuid.UUID) *model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id].Clone()
}

type memoryCatalog struct {
	basePrices map[uuid.UUID]int64
	pricelists map[uuid.UUID]map[uuid.UUID]int64
}

func (c *memoryCatalog) PricelistEntry(_ context.Context, pricelistID, unitID uuid.UUID) (int64, bool, error) {
	price, ok := c.pricelists[pricelistID][unitID]
	return price, ok, nil
}

func (c *memoryCatalog) CatalogBasePrice(_ context.Context, unitID uuid.UUID) (int64, error) {
	price, ok := c.basePrices[unitID]
	if !ok {
		return 0, model.ErrPriceNotFound
	}
	return price, nil
}

type testServer struct {
	handler         http.Handler
	recommendations *stubRecommendations
	weights         *stubWeights
	repo            *memoryQuotes
	quote           *model.Quote
	draft           *model.Quote
	wholesale       uuid.UUID
	offering        uuid.UUID
}

func newLineItem(quoteID uuid.UUID, unitID uuid.UUID, quantity int, unitPrice int64) model.LineItem {
	return model.LineItem{
		ID:             uuid.New(),
		QuoteID:        quoteID,
		CatalogUnitID:  unitID,
		Quantity:       quantity,
		UnitPriceCents: unitPrice,
		PriceCents:     unitPrice * int64(quantity),
	}
}

func setup(t *testing.T) *testServer {
	unitID := uuid.New()
	quote := &model.Quote{ID: uuid.New(), CustomerID: uuid.New(), Status: model.Sent, Version: 1, LockVersion: 1}
	quote.Items = []model.LineItem{newLineItem(quote.ID, unitID, 10, 100)}
	draft := &model.Quote{ID: uuid.New(), CustomerID: uuid.New(), Status: model.Draft, Version: 1, LockVersion: 1}
	draft.Items = []model.LineItem{newLineItem(draft.ID, unitID, 10, 100)}
	draft.RecalculateTotal()

	s := &testServer{
		weights:   &stubWeights{weights: model.DefaultScoringWeights()},
		quote:     quote,
		draft:     draft,
		wholesale: uuid.New(),
		offering:  uuid.New(),
		repo: &memoryQuotes{store: map[uuid.UUID]*model.Quote{
			quote.ID: quote.Clone(),
			draft.ID: draft.Clone(),
		}},
	}
	s.recommendations = &stubRecommendations{offering: map[uuid.UUID]bool{s.offering: true}}

	catalog := &memoryCatalog{
		basePrices: map[uuid.UUID]int64{unitID: 100},
		pricelists: map[uuid.UUID]map[uuid.UUID]int64{s.wholesale: {unitID: 80}},
	}
	logger, _ := test.NewNullLogger()
	pricing := service.NewPricingService(s.repo, catalog, event.NewDispatcher(logger))

	s.handler = Router(&stubQuotes{quote: quote}, pricing, s.weights, s.recommendations)
	return s
}

func (s *testServer) do(method, path, body string, actor *model.Actor, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		req.Header.Set(transport.ActorIDHeader, actor.ID.String())
		req.Header.Set(transport.ActorKindHeader, string(actor.Kind))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func decodeQuote(t *testing.T, rec *httptest.ResponseRecorder) transport.QuoteDTO {
	var dto transport.QuoteDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	return dto
}

func TestGetQuote(t *testing.T) {
	s := setup(t)

	t.Run("Success", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/quotes/"+s.quote.ID.String(), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		dto := decodeQuote(t, rec)
		assert.Equal(t, s.quote.ID, dto.ID)
		assert.Equal(t, "sent", dto.Status)
		require.Len(t, dto.Items, 1)
		assert.Equal(t, int64(1000), dto.Items[0].PriceCents)
	})

	t.Run("Not found is localized", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/quotes/"+uuid.NewString(), "", nil, "Accept-Language", "ru")
		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, transport.KindNotFound, body.Error.Kind)
		assert.Equal(t, "не найдено", body.Error.Message)
	})

	t.Run("Malformed id", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/quotes/not-a-uuid", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransitionQuote(t *testing.T) {
	s := setup(t)
	customer := model.Actor{ID: s.quote.CustomerID, Kind: model.ActorCustomer}
	path := "/api/v1/quotes/" + s.quote.ID.String() + "/transitions"

	t.Run("Illegal event", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, `{"event":"markReady","expectedStatus":"sent"}`, &customer)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, transport.KindInvalidTransition, decodeError(t, rec).Error.Kind)
	})

	t.Run("Unknown event", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, `{"event":"teleport","expectedStatus":"sent"}`, &customer)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, transport.KindInvalidArgument, decodeError(t, rec).Error.Kind)
	})

	t.Run("Missing actor", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, `{"event":"approve","expectedStatus":"sent"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Success", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, `{"event":"approve","expectedStatus":"sent"}`, &customer)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "approved", decodeQuote(t, rec).Status)
	})

	t.Run("Stale status", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, `{"event":"approve","expectedStatus":"sent"}`, &customer)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, transport.KindConflict, decodeError(t, rec).Error.Kind)
	})
}

func TestSupplierEndpoints(t *testing.T) {
	s := setup(t)
	staff := model.Actor{ID: uuid.New(), Kind: model.ActorStaff}
	itemPath := "/api/v1/quotes/" + s.quote.ID.String() + "/items/" + s.quote.Items[0].ID.String()

	t.Run("Whole quote without covering supplier", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/quotes/"+s.quote.ID.String()+"/supplier-rankings", "", nil)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, transport.KindNoEligibleSupplier, decodeError(t, rec).Error.Kind)
	})

	t.Run("Supplier without offer is refused even with a cost", func(t *testing.T) {
		rec := s.do(http.MethodPost, itemPath+"/assignment", `{"supplierId":"`+uuid.NewString()+`","supplierCostCents":1}`, &staff)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, transport.KindPreconditionFailed, decodeError(t, rec).Error.Kind)
		assert.Empty(t, s.recommendations.choices)
	})

	t.Run("Negotiated cost goes through selection", func(t *testing.T) {
		rec := s.do(http.MethodPost, itemPath+"/assignment", `{"supplierId":"`+s.offering.String()+`","supplierCostCents":900,"deliveryDays":3}`, &staff)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, s.recommendations.choices, 1)
		choice := s.recommendations.choices[0]
		assert.Equal(t, s.offering, choice.SupplierID)
		require.NotNil(t, choice.SupplierCostCents)
		assert.Equal(t, int64(900), *choice.SupplierCostCents)
		require.NotNil(t, choice.DeliveryDays)
		assert.Equal(t, 3, *choice.DeliveryDays)
	})

	t.Run("Second assignment loses", func(t *testing.T) {
		rec := s.do(http.MethodPost, itemPath+"/assignment", `{"supplierId":"`+s.offering.String()+`"}`, &staff)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, transport.KindAlreadyAssigned, decodeError(t, rec).Error.Kind)
	})

	t.Run("Unknown fields are rejected", func(t *testing.T) {
		rec := s.do(http.MethodPost, itemPath+"/assignment", `{"supplier":"x"}`, &staff)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPricingEndpoints(t *testing.T) {
	s := setup(t)
	staff := model.Actor{ID: uuid.New(), Kind: model.ActorStaff}
	customer := model.Actor{ID: s.draft.CustomerID, Kind: model.ActorCustomer}
	quotePath := "/api/v1/quotes/" + s.draft.ID.String()
	itemPath := quotePath + "/items/" + s.draft.Items[0].ID.String()

	t.Run("Manual price", func(t *testing.T) {
		rec := s.do(http.MethodPut, itemPath+"/manual-price", `{"priceCents":750}`, &staff)
		require.Equal(t, http.StatusOK, rec.Code)
		dto := decodeQuote(t, rec)
		assert.Equal(t, int64(750), dto.Items[0].PriceCents)
		require.NotNil(t, dto.Items[0].ManualPriceCents)
		assert.Equal(t, int64(750), dto.FinalValueCents)

		rec = s.do(http.MethodGet, itemPath+"/price", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var price transport.PriceDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &price))
		assert.True(t, price.IsManual)
		assert.Equal(t, int64(750), price.CustomerPriceCents)
	})

	t.Run("Customer cannot reprice", func(t *testing.T) {
		rec := s.do(http.MethodPut, itemPath+"/manual-price", `{"priceCents":1}`, &customer)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, transport.KindForbidden, decodeError(t, rec).Error.Kind)

		rec = s.do(http.MethodDelete, itemPath+"/manual-price", "", &customer)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = s.do(http.MethodPut, quotePath+"/pricelist", `{"pricelistId":"`+s.wholesale.String()+`"}`, &customer)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		assert.Equal(t, int64(750), s.repo.stored(s.draft.ID).Items[0].PriceCents)
	})

	t.Run("Anonymous request never reaches pricing", func(t *testing.T) {
		rec := s.do(http.MethodPut, quotePath+"/pricelist", `{"pricelistId":"`+s.wholesale.String()+`"}`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, s.repo.stored(s.draft.ID).PricelistID)
	})

	t.Run("Reset and switch pricelist", func(t *testing.T) {
		rec := s.do(http.MethodDelete, itemPath+"/manual-price", "", &staff)
		require.Equal(t, http.StatusOK, rec.Code)
		dto := decodeQuote(t, rec)
		assert.Nil(t, dto.Items[0].ManualPriceCents)
		assert.Equal(t, int64(1000), dto.Items[0].PriceCents)

		rec = s.do(http.MethodPut, quotePath+"/pricelist", `{"pricelistId":"`+s.wholesale.String()+`"}`, &staff)
		require.Equal(t, http.StatusOK, rec.Code)
		dto = decodeQuote(t, rec)
		assert.Equal(t, int64(800), dto.Items[0].PriceCents)
		assert.Equal(t, int64(800), dto.FinalValueCents)
	})

	t.Run("Sent quote cannot be repriced", func(t *testing.T) {
		sentItem := "/api/v1/quotes/" + s.quote.ID.String() + "/items/" + s.quote.Items[0].ID.String()
		rec := s.do(http.MethodPut, sentItem+"/manual-price", `{"priceCents":500}`, &staff)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, transport.KindPreconditionFailed, decodeError(t, rec).Error.Kind)
		assert.Equal(t, int64(1000), s.repo.stored(s.quote.ID).Items[0].PriceCents)
	})
}

func TestScoringWeights(t *testing.T) {
	s := setup(t)
	staff := model.Actor{ID: uuid.New(), Kind: model.ActorStaff}
	customer := model.Actor{ID: uuid.New(), Kind: model.ActorCustomer}

	t.Run("Invalid weights", func(t *testing.T) {
		rec := s.do(http.MethodPut, "/api/v1/scoring-weights", `{"price":50,"rating":50,"deliveryTime":50,"reliability":0}`, &staff)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, transport.KindInvalidConfiguration, decodeError(t, rec).Error.Kind)
		assert.Equal(t, model.DefaultScoringWeights(), s.weights.weights)
	})

	t.Run("Customer cannot configure", func(t *testing.T) {
		rec := s.do(http.MethodPut, "/api/v1/scoring-weights", `{"price":100}`, &customer)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Success", func(t *testing.T) {
		rec := s.do(http.MethodPut, "/api/v1/scoring-weights", `{"price":55,"rating":15,"deliveryTime":15,"reliability":15}`, &staff)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(http.MethodGet, "/api/v1/scoring-weights", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var dto transport.WeightsDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
		assert.Equal(t, 55, dto.Price)
	})
}
