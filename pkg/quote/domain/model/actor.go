package model

import "github.com/google/uuid"

type ActorKind string

const (
	ActorCustomer ActorKind = "customer"
	ActorStaff    ActorKind = "staff"
	ActorSystem   ActorKind = "system"
)

type Actor struct {
	ID   uuid.UUID
	Kind ActorKind
	// CanProxyApproval marks staff allowed to approve or reject on a customer's behalf.
	CanProxyApproval bool
}

func (a Actor) IsCustomerOf(q *Quote) bool {
	return a.Kind == ActorCustomer && a.ID == q.CustomerID
}

func (a Actor) IsStaff() bool {
	return a.Kind == ActorStaff || a.Kind == ActorSystem
}
