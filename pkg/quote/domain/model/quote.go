package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Quote struct {
	ID         uuid.UUID
	LineageID  uuid.UUID
	ParentID   *uuid.UUID
	CustomerID uuid.UUID
	Status     QuoteStatus
	// Version is the revision number inside the lineage, starting at 1.
	Version         int
	PricelistID     *uuid.UUID
	AutoProduction  bool
	FinalValueCents int64
	RejectionReason *string
	Items           []LineItem
	// LockVersion guards every write against concurrent modification.
	LockVersion int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type LineItem struct {
	ID            uuid.UUID
	QuoteID       uuid.UUID
	CatalogUnitID uuid.UUID
	Quantity      int
	// UnitPriceCents is the per-unit price frozen when the line was last priced.
	UnitPriceCents   int64
	PriceCents       int64
	ManualPriceCents *int64
	Assignment       *SupplierAssignment
	// History holds every assignment ever made, cancelled ones included.
	History []SupplierAssignment
}

type SupplierAssignment struct {
	ID                uuid.UUID
	LineItemID        uuid.UUID
	SupplierID        uuid.UUID
	SupplierCostCents int64
	DeliveryDays      int
	AssignedBy        uuid.UUID
	AssignedAt        time.Time
	CancelledAt       *time.Time
	CancelReason      string
}

func (i *LineItem) IsManual() bool {
	return i.ManualPriceCents != nil
}

// IsPriced reports whether the line carries a customer-facing price.
func (i *LineItem) IsPriced() bool {
	return i.PriceCents > 0
}

func (i *LineItem) IsAssigned() bool {
	return i.Assignment != nil
}

func (q *Quote) FindItem(itemID uuid.UUID) (int, bool) {
	for i := range q.Items {
		if q.Items[i].ID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (q *Quote) AllUnassigned() bool {
	for i := range q.Items {
		if q.Items[i].IsAssigned() {
			return false
		}
	}
	return true
}

func (q *Quote) AnyAssigned() bool {
	return !q.AllUnassigned()
}

func (q *Quote) RecalculateTotal() {
	var total int64
	for _, item := range q.Items {
		total += item.PriceCents
	}
	q.FinalValueCents = total
}

// Clone returns a copy sharing no memory with q.
func (q *Quote) Clone() *Quote {
	clone := *q
	clone.ParentID = cloneUUID(q.ParentID)
	clone.PricelistID = cloneUUID(q.PricelistID)
	if q.RejectionReason != nil {
		reason := *q.RejectionReason
		clone.RejectionReason = &reason
	}
	if q.Items != nil {
		clone.Items = make([]LineItem, len(q.Items))
		for i := range q.Items {
			clone.Items[i] = q.Items[i].Clone()
		}
	}
	return &clone
}

func (i LineItem) Clone() LineItem {
	clone := i
	if i.ManualPriceCents != nil {
		price := *i.ManualPriceCents
		clone.ManualPriceCents = &price
	}
	if i.Assignment != nil {
		assignment := i.Assignment.Clone()
		clone.Assignment = &assignment
	}
	if i.History != nil {
		clone.History = make([]SupplierAssignment, len(i.History))
		for j := range i.History {
			clone.History[j] = i.History[j].Clone()
		}
	}
	return clone
}

func (a SupplierAssignment) Clone() SupplierAssignment {
	clone := a
	if a.CancelledAt != nil {
		at := *a.CancelledAt
		clone.CancelledAt = &at
	}
	return clone
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// TransitionRecord is the audit row written atomically with a status change.
type TransitionRecord struct {
	QuoteID    uuid.UUID
	Event      QuoteEvent
	FromStatus QuoteStatus
	ToStatus   QuoteStatus
	ActorID    uuid.UUID
	Reason     string
	ItemIDs    []uuid.UUID
	At         time.Time
}

type QuoteRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, quote *Quote) error
	Find(ctx context.Context, id uuid.UUID) (*Quote, error)
	// Update persists quote fields and line prices. It fails with
	// ErrOptimisticLock unless the stored LockVersion is quote.LockVersion-1.
	Update(ctx context.Context, quote *Quote) error
	// PersistTransition atomically stores the new status and the audit
	// record, guarded by the stored status equal to record.FromStatus and
	// the optimistic lock.
	PersistTransition(ctx context.Context, quote *Quote, record TransitionRecord) error
	// CreateRevision supersedes parent and stores revision with its own
	// copies of the line items as one unit of work, serialised per lineage.
	CreateRevision(ctx context.Context, parent *Quote, revision *Quote, record TransitionRecord) error
	// AssignSupplier sets the item's supplier only if it has none,
	// otherwise it fails with ErrAlreadyAssigned. It bumps the quote's
	// LockVersion like every other write and returns the new value.
	AssignSupplier(ctx context.Context, quoteID uuid.UUID, assignment SupplierAssignment) (int, error)
	History(ctx context.Context, quoteID uuid.UUID) ([]TransitionRecord, error)
}
