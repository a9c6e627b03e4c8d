package model

import "github.com/pkg/errors"

var (
	// ErrInvalidConfiguration is returned when scoring weights do not sum to 100
	// or contain a negative weight. Nothing is applied or ranked.
	ErrInvalidConfiguration = errors.New("invalid scoring configuration")

	// ErrInvalidTransition is returned for a lifecycle event that is illegal
	// from the quote's current status. The quote is left unchanged.
	ErrInvalidTransition = errors.New("invalid quote transition")

	// ErrAlreadyAssigned is returned when another assignment won the race
	// for the same line item.
	ErrAlreadyAssigned = errors.New("line item already has a supplier assigned")

	// ErrNoEligibleSupplier is returned by whole-quote ranking when no
	// supplier offers every line item.
	ErrNoEligibleSupplier = errors.New("no supplier can fulfill every line item")

	ErrQuoteNotFound          = errors.New("quote not found")
	ErrLineItemNotFound       = errors.New("line item not found")
	ErrOptimisticLock         = errors.New("quote has been modified by another transaction")
	ErrQuoteCannotBeModified  = errors.New("quote cannot be modified in its current state")
	ErrQuoteIsEmpty           = errors.New("cannot send a quote without line items")
	ErrLineItemUnpriced       = errors.New("every line item must be priced before sending")
	ErrNoSupplierAssigned     = errors.New("production requires an assigned supplier or auto-production")
	ErrSupplierNotAssigned    = errors.New("line item has no supplier assigned")
	ErrSupplierHasNoOffer     = errors.New("supplier has no offer for the line item")
	ErrNotAuthorized          = errors.New("actor is not allowed to perform this action")
	ErrExpectedStatusRequired = errors.New("expected current status is required")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrNegativePrice          = errors.New("price cannot be negative")
	ErrPriceNotFound          = errors.New("no catalog price for catalog unit")
)
