package rest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	appservice "quoteengine/pkg/quote/application/service"
	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
	"quoteengine/pkg/quote/infrastructure/transport"
)

type Handler struct {
	quotes          service.QuoteService
	pricing         service.PricingService
	weights         service.WeightsService
	recommendations appservice.RecommendationService
}

type errorBody struct {
	Error struct {
		Kind    transport.Kind `json:"kind"`
		Message string         `json:"message"`
	} `json:"error"`
}

func Router(
	quotes service.QuoteService,
	pricing service.PricingService,
	weights service.WeightsService,
	recommendations appservice.RecommendationService,
) http.Handler {
	h := &Handler{
		quotes:          quotes,
		pricing:         pricing,
		weights:         weights,
		recommendations: recommendations,
	}

	r := mux.NewRouter()
	s := r.PathPrefix("/api/v1").Subrouter()

	s.HandleFunc("/quotes", h.createQuote).Methods(http.MethodPost)
	s.HandleFunc("/quotes/{quoteID}", h.getQuote).Methods(http.MethodGet)
	s.HandleFunc("/quotes/{quoteID}/history", h.quoteHistory).Methods(http.MethodGet)
	s.HandleFunc("/quotes/{quoteID}/transitions", h.transitionQuote).Methods(http.MethodPost)
	s.HandleFunc("/quotes/{quoteID}/pricelist", h.switchPricelist).Methods(http.MethodPut)
	s.HandleFunc("/quotes/{quoteID}/supplier-rankings", h.rankSuppliersForQuote).Methods(http.MethodGet)
	s.HandleFunc("/quotes/{quoteID}/items/{itemID}/supplier-rankings", h.rankSuppliersForItem).Methods(http.MethodGet)
	s.HandleFunc("/quotes/{quoteID}/items/{itemID}/assignment", h.assignSupplier).Methods(http.MethodPost)
	s.HandleFunc("/quotes/{quoteID}/items/{itemID}/price", h.resolvePrice).Methods(http.MethodGet)
	s.HandleFunc("/quotes/{quoteID}/items/{itemID}/manual-price", h.setManualPrice).Methods(http.MethodPut)
	s.HandleFunc("/quotes/{quoteID}/items/{itemID}/manual-price", h.resetManualPrice).Methods(http.MethodDelete)
	s.HandleFunc("/scoring-weights", h.getWeights).Methods(http.MethodGet)
	s.HandleFunc("/scoring-weights", h.updateWeights).Methods(http.MethodPut)

	return logMiddleware(r)
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transport.CreateQuoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	quote, err := h.quotes.CreateQuote(r.Context(), actor, req.ToNewQuote())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transport.NewQuoteDTO(quote))
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.quotes.GetQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteDTO(quote))
}

func (h *Handler) quoteHistory(w http.ResponseWriter, r *http.Request) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.quotes.QuoteHistory(r.Context(), quoteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewTransitionDTOs(records))
}

func (h *Handler) transitionQuote(w http.ResponseWriter, r *http.Request) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body transport.TransitionQuoteRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.ToTransitionRequest(actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	quote, err := h.quotes.TransitionQuote(r.Context(), quoteID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteDTO(quote))
}

func (h *Handler) switchPricelist(w http.ResponseWriter, r *http.Request) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transport.SwitchPricelistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.pricing.SwitchPricelist(r.Context(), quoteID, req.PricelistID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteDTO(quote))
}

func (h *Handler) rankSuppliersForQuote(w http.ResponseWriter, r *http.Request) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rankings, err := h.recommendations.RankSuppliersForQuote(r.Context(), quoteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteRankingDTOs(rankings))
}

func (h *Handler) rankSuppliersForItem(w http.ResponseWriter, r *http.Request) {
	quoteID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rankings, err := h.recommendations.RankSuppliersForItem(r.Context(), quoteID, itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewSupplierRankingDTOs(rankings))
}

func (h *Handler) assignSupplier(w http.ResponseWriter, r *http.Request) {
	quoteID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transport.AssignSupplierRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	assignment, err := h.recommendations.SelectSupplier(r.Context(), quoteID, itemID, req.ToSupplierChoice(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transport.NewAssignmentDTO(*assignment))
}

func (h *Handler) resolvePrice(w http.ResponseWriter, r *http.Request) {
	quoteID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	price, err := h.pricing.ResolveLinePrice(r.Context(), quoteID, itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewPriceDTO(price))
}

func (h *Handler) setManualPrice(w http.ResponseWriter, r *http.Request) {
	quoteID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transport.ManualPriceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.pricing.SetManualPrice(r.Context(), quoteID, itemID, req.PriceCents, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteDTO(quote))
}

func (h *Handler) resetManualPrice(w http.ResponseWriter, r *http.Request) {
	quoteID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.pricing.ResetManualPrice(r.Context(), quoteID, itemID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewQuoteDTO(quote))
}

func (h *Handler) getWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := h.weights.ScoringWeights(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transport.NewWeightsDTO(weights))
}

func (h *Handler) updateWeights(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !actor.IsStaff() {
		writeError(w, r, model.ErrNotAuthorized)
		return
	}
	var req transport.WeightsDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.weights.UpdateScoringWeights(r.Context(), req.ToScoringWeights()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func actorFrom(r *http.Request) (model.Actor, error) {
	return transport.ParseActor(
		r.Header.Get(transport.ActorIDHeader),
		r.Header.Get(transport.ActorKindHeader),
		r.Header.Get(transport.ActorProxyApprovalHeader),
	)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, errors.Wrapf(transport.ErrBadRequest, "malformed %s", name)
	}
	return id, nil
}

func itemPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	quoteID, err := pathID(r, "quoteID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return quoteID, itemID, nil
}

func decode(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.Wrap(transport.ErrBadRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := transport.Classify(err)
	fields := log.Fields{"kind": kind, "method": r.Method, "url": r.URL}
	if kind == transport.KindInternal {
		log.WithError(err).WithFields(fields).Error("request failed")
	} else {
		log.WithError(err).WithFields(fields).Warn("request rejected")
	}

	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = kind.Message(r.Header.Get("Accept-Language"))
	writeJSON(w, kind.HTTPStatus(), body)
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
