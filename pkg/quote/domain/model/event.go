package model

import "github.com/google/uuid"

type QuoteCreated struct {
	QuoteID    uuid.UUID
	CustomerID uuid.UUID
}

func (e QuoteCreated) Type() string { return "QuoteCreated" }

type QuoteTransitioned struct {
	QuoteID    uuid.UUID
	CustomerID uuid.UUID
	Event      QuoteEvent
	From       QuoteStatus
	To         QuoteStatus
	Reason     string
}

func (e QuoteTransitioned) Type() string { return "QuoteTransitioned" }

type QuoteRevised struct {
	ParentID   uuid.UUID
	RevisionID uuid.UUID
	LineageID  uuid.UUID
	Version    int
}

func (e QuoteRevised) Type() string { return "QuoteRevised" }

type SupplierAssigned struct {
	QuoteID     uuid.UUID
	LineItemID  uuid.UUID
	SupplierID  uuid.UUID
	LockVersion int
}

func (e SupplierAssigned) Type() string { return "SupplierAssigned" }

type SupplierCancelled struct {
	QuoteID    uuid.UUID
	LineItemID uuid.UUID
	SupplierID uuid.UUID
	Reason     string
}

func (e SupplierCancelled) Type() string { return "SupplierCancelled" }

type LinePriceChanged struct {
	QuoteID       uuid.UUID
	LineItemID    uuid.UUID
	OldPriceCents int64
	NewPriceCents int64
	IsManual      bool
}

func (e LinePriceChanged) Type() string { return "LinePriceChanged" }

type PricelistSwitched struct {
	QuoteID     uuid.UUID
	PricelistID *uuid.UUID
	Repriced    int
}

func (e PricelistSwitched) Type() string { return "PricelistSwitched" }

type ScoringWeightsUpdated struct {
	Weights ScoringWeights
}

func (e ScoringWeightsUpdated) Type() string { return "ScoringWeightsUpdated" }
