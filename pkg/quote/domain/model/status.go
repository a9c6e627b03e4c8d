package model

import "github.com/pkg/errors"

type QuoteStatus string

const (
	Draft        QuoteStatus = "draft"
	Sent         QuoteStatus = "sent"
	Approved     QuoteStatus = "approved"
	Rejected     QuoteStatus = "rejected"
	Superseded   QuoteStatus = "superseded"
	InProduction QuoteStatus = "in_production"
	Ready        QuoteStatus = "ready"
)

var AllStatuses = []QuoteStatus{Draft, Sent, Approved, Rejected, Superseded, InProduction, Ready}

func ParseQuoteStatus(s string) (QuoteStatus, error) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", errors.Errorf("unknown quote status %q", s)
}

// IsTerminal reports whether no lifecycle event may leave the status.
// Superseded versions are read-only history and count as closed as well.
func (s QuoteStatus) IsTerminal() bool {
	return s == Rejected || s == Ready || s == Superseded
}

// IsCurrent reports whether the version can still be the live one of its lineage.
func (s QuoteStatus) IsCurrent() bool {
	return s != Superseded
}

type QuoteEvent string

const (
	EventSend            QuoteEvent = "send"
	EventApprove         QuoteEvent = "approve"
	EventReject          QuoteEvent = "reject"
	EventStartProduction QuoteEvent = "startProduction"
	EventMarkReady       QuoteEvent = "markReady"
	EventRevise          QuoteEvent = "revise"
	EventCancelSupplier  QuoteEvent = "cancelSupplier"
)

var AllEvents = []QuoteEvent{
	EventSend, EventApprove, EventReject, EventStartProduction,
	EventMarkReady, EventRevise, EventCancelSupplier,
}

func ParseQuoteEvent(s string) (QuoteEvent, error) {
	for _, event := range AllEvents {
		if string(event) == s {
			return event, nil
		}
	}
	return "", errors.Errorf("unknown quote event %q", s)
}

// transitions is the single lifecycle table. Revise moves the parent to
// Superseded; the new version starts in Draft. CancelSupplier lists the
// status kept when some items stay assigned; NextStatus handles the rest.
var transitions = map[QuoteStatus]map[QuoteEvent]QuoteStatus{
	Draft: {
		EventSend:   Sent,
		EventRevise: Superseded,
	},
	Sent: {
		EventApprove: Approved,
		EventReject:  Rejected,
		EventRevise:  Superseded,
	},
	Approved: {
		EventStartProduction: InProduction,
		EventRevise:          Superseded,
		EventCancelSupplier:  Approved,
	},
	InProduction: {
		EventMarkReady:      Ready,
		EventRevise:         Superseded,
		EventCancelSupplier: InProduction,
	},
}

// CanApply reports whether event is legal from status, ignoring guards.
func CanApply(status QuoteStatus, event QuoteEvent) bool {
	_, ok := transitions[status][event]
	return ok
}

// NextStatus resolves the target status of event applied to status.
// allUnassigned is only consulted for EventCancelSupplier.
func NextStatus(status QuoteStatus, event QuoteEvent, allUnassigned bool) (QuoteStatus, error) {
	next, ok := transitions[status][event]
	if !ok {
		return "", errors.Wrapf(ErrInvalidTransition, "%s -> %s", status, event)
	}
	if event == EventCancelSupplier && allUnassigned {
		return Approved, nil
	}
	return next, nil
}
