package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appservice "quoteengine/pkg/quote/application/service"
	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
)

type QuoteDTO struct {
	ID              uuid.UUID     `json:"id"`
	LineageID       uuid.UUID     `json:"lineageId"`
	ParentID        *uuid.UUID    `json:"parentId,omitempty"`
	CustomerID      uuid.UUID     `json:"customerId"`
	Status          string        `json:"status"`
	Version         int           `json:"version"`
	PricelistID     *uuid.UUID    `json:"pricelistId,omitempty"`
	AutoProduction  bool          `json:"autoProduction"`
	FinalValueCents int64         `json:"finalValueCents"`
	RejectionReason *string       `json:"rejectionReason,omitempty"`
	Items           []LineItemDTO `json:"items"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type LineItemDTO struct {
	ID               uuid.UUID       `json:"id"`
	CatalogUnitID    uuid.UUID       `json:"catalogUnitId"`
	Quantity         int             `json:"quantity"`
	UnitPriceCents   int64           `json:"unitPriceCents"`
	PriceCents       int64           `json:"priceCents"`
	ManualPriceCents *int64          `json:"manualPriceCents,omitempty"`
	Assignment       *AssignmentDTO  `json:"assignment,omitempty"`
	History          []AssignmentDTO `json:"history"`
}

type AssignmentDTO struct {
	ID                uuid.UUID  `json:"id"`
	LineItemID        uuid.UUID  `json:"lineItemId"`
	SupplierID        uuid.UUID  `json:"supplierId"`
	SupplierCostCents int64      `json:"supplierCostCents"`
	DeliveryDays      int        `json:"deliveryDays"`
	AssignedBy        uuid.UUID  `json:"assignedBy"`
	AssignedAt        time.Time  `json:"assignedAt"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	CancelReason      string     `json:"cancelReason,omitempty"`
}

type TransitionDTO struct {
	Event      string      `json:"event"`
	FromStatus string      `json:"fromStatus"`
	ToStatus   string      `json:"toStatus"`
	ActorID    uuid.UUID   `json:"actorId"`
	Reason     string      `json:"reason,omitempty"`
	ItemIDs    []uuid.UUID `json:"itemIds,omitempty"`
	At         time.Time   `json:"at"`
}

type SupplierRankingDTO struct {
	SupplierID          uuid.UUID         `json:"supplierId"`
	BaseScore           float64           `json:"baseScore"`
	BonusPercent        float64           `json:"bonusPercent"`
	TotalScore          float64           `json:"totalScore"`
	OtherItemsCoverable int               `json:"otherItemsCoverable"`
	PriceCents          int64             `json:"priceCents"`
	LeadTimeDays        int               `json:"leadTimeDays"`
	Breakdown           ScoreBreakdownDTO `json:"breakdown"`
}

type ScoreBreakdownDTO struct {
	Price        float64 `json:"price"`
	Rating       float64 `json:"rating"`
	DeliveryTime float64 `json:"deliveryTime"`
	Reliability  float64 `json:"reliability"`
}

type QuoteRankingDTO struct {
	SupplierID      uuid.UUID             `json:"supplierId"`
	Score           float64               `json:"score"`
	TotalCostCents  int64                 `json:"totalCostCents"`
	MaxDeliveryDays int                   `json:"maxDeliveryDays"`
	ItemScores      map[uuid.UUID]float64 `json:"itemScores"`
}

type PriceDTO struct {
	CustomerPriceCents int64 `json:"customerPriceCents"`
	UnitPriceCents     int64 `json:"unitPriceCents"`
	IsManual           bool  `json:"isManual"`
}

type WeightsDTO struct {
	Price        int `json:"price"`
	Rating       int `json:"rating"`
	DeliveryTime int `json:"deliveryTime"`
	Reliability  int `json:"reliability"`
}

type CreateQuoteRequest struct {
	CustomerID     uuid.UUID  `json:"customerId"`
	PricelistID    *uuid.UUID `json:"pricelistId"`
	AutoProduction bool       `json:"autoProduction"`
	Items          []struct {
		CatalogUnitID uuid.UUID `json:"catalogUnitId"`
		Quantity      int       `json:"quantity"`
	} `json:"items"`
}

type TransitionQuoteRequest struct {
	Event          string      `json:"event"`
	ExpectedStatus string      `json:"expectedStatus"`
	Reason         string      `json:"reason"`
	ItemIDs        []uuid.UUID `json:"itemIds"`
}

// AssignSupplierRequest assigns from the supplier's catalog offer. Cost and
// delivery days override the offer's terms when present.
type AssignSupplierRequest struct {
	SupplierID        uuid.UUID `json:"supplierId"`
	SupplierCostCents *int64    `json:"supplierCostCents"`
	DeliveryDays      *int      `json:"deliveryDays"`
}

type SwitchPricelistRequest struct {
	PricelistID *uuid.UUID `json:"pricelistId"`
}

type ManualPriceRequest struct {
	PriceCents int64 `json:"priceCents"`
}

func (r CreateQuoteRequest) ToNewQuote() service.NewQuote {
	q := service.NewQuote{
		CustomerID:     r.CustomerID,
		PricelistID:    r.PricelistID,
		AutoProduction: r.AutoProduction,
	}
	for _, item := range r.Items {
		q.Items = append(q.Items, service.NewLineItem{CatalogUnitID: item.CatalogUnitID, Quantity: item.Quantity})
	}
	return q
}

func (r AssignSupplierRequest) ToSupplierChoice() appservice.SupplierChoice {
	return appservice.SupplierChoice{
		SupplierID:        r.SupplierID,
		SupplierCostCents: r.SupplierCostCents,
		DeliveryDays:      r.DeliveryDays,
	}
}

func (r TransitionQuoteRequest) ToTransitionRequest(actor model.Actor) (service.TransitionRequest, error) {
	event, err := model.ParseQuoteEvent(r.Event)
	if err != nil {
		return service.TransitionRequest{}, errors.Wrap(ErrBadRequest, err.Error())
	}
	req := service.TransitionRequest{
		Event:   event,
		Actor:   actor,
		Reason:  r.Reason,
		ItemIDs: r.ItemIDs,
	}
	if r.ExpectedStatus != "" {
		status, err := model.ParseQuoteStatus(r.ExpectedStatus)
		if err != nil {
			return service.TransitionRequest{}, errors.Wrap(ErrBadRequest, err.Error())
		}
		req.ExpectedStatus = status
	}
	return req, nil
}

func NewQuoteDTO(q *model.Quote) QuoteDTO {
	dto := QuoteDTO{
		ID:              q.ID,
		LineageID:       q.LineageID,
		ParentID:        q.ParentID,
		CustomerID:      q.CustomerID,
		Status:          string(q.Status),
		Version:         q.Version,
		PricelistID:     q.PricelistID,
		AutoProduction:  q.AutoProduction,
		FinalValueCents: q.FinalValueCents,
		RejectionReason: q.RejectionReason,
		Items:           make([]LineItemDTO, 0, len(q.Items)),
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
	for _, item := range q.Items {
		itemDTO := LineItemDTO{
			ID:               item.ID,
			CatalogUnitID:    item.CatalogUnitID,
			Quantity:         item.Quantity,
			UnitPriceCents:   item.UnitPriceCents,
			PriceCents:       item.PriceCents,
			ManualPriceCents: item.ManualPriceCents,
			History:          make([]AssignmentDTO, 0, len(item.History)),
		}
		if item.Assignment != nil {
			a := NewAssignmentDTO(*item.Assignment)
			itemDTO.Assignment = &a
		}
		for _, a := range item.History {
			itemDTO.History = append(itemDTO.History, NewAssignmentDTO(a))
		}
		dto.Items = append(dto.Items, itemDTO)
	}
	return dto
}

func NewAssignmentDTO(a model.SupplierAssignment) AssignmentDTO {
	return AssignmentDTO{
		ID:                a.ID,
		LineItemID:        a.LineItemID,
		SupplierID:        a.SupplierID,
		SupplierCostCents: a.SupplierCostCents,
		DeliveryDays:      a.DeliveryDays,
		AssignedBy:        a.AssignedBy,
		AssignedAt:        a.AssignedAt,
		CancelledAt:       a.CancelledAt,
		CancelReason:      a.CancelReason,
	}
}

func NewTransitionDTOs(records []model.TransitionRecord) []TransitionDTO {
	dtos := make([]TransitionDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, TransitionDTO{
			Event:      string(r.Event),
			FromStatus: string(r.FromStatus),
			ToStatus:   string(r.ToStatus),
			ActorID:    r.ActorID,
			Reason:     r.Reason,
			ItemIDs:    r.ItemIDs,
			At:         r.At,
		})
	}
	return dtos
}

func NewSupplierRankingDTOs(rankings []model.SupplierRanking) []SupplierRankingDTO {
	dtos := make([]SupplierRankingDTO, 0, len(rankings))
	for _, r := range rankings {
		dtos = append(dtos, SupplierRankingDTO{
			SupplierID:          r.SupplierID,
			BaseScore:           r.BaseScore,
			BonusPercent:        r.BonusPercent,
			TotalScore:          r.TotalScore,
			OtherItemsCoverable: r.OtherItemsCoverable,
			PriceCents:          r.PriceCents,
			LeadTimeDays:        r.LeadTimeDays,
			Breakdown:           ScoreBreakdownDTO(r.Breakdown),
		})
	}
	return dtos
}

func NewQuoteRankingDTOs(rankings []model.QuoteRanking) []QuoteRankingDTO {
	dtos := make([]QuoteRankingDTO, 0, len(rankings))
	for _, r := range rankings {
		dtos = append(dtos, QuoteRankingDTO(r))
	}
	return dtos
}

func NewPriceDTO(r service.PriceResolution) PriceDTO {
	return PriceDTO(r)
}

func NewWeightsDTO(w model.ScoringWeights) WeightsDTO {
	return WeightsDTO(w)
}

func (w WeightsDTO) ToScoringWeights() model.ScoringWeights {
	return model.ScoringWeights(w)
}
