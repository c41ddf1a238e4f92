package domain

import (
	"fmt"
	"slices"
)

// Transitions is a finite state machine rule table: each source state maps
// to the set of states it may move to. A state absent from the table, or
// mapped to an empty set, is terminal.
type Transitions[S ~string] map[S][]S

func (t Transitions[S]) Allowed(from S) []S {
	return slices.Clone(t[from])
}

func (t Transitions[S]) CanTransition(from, to S) bool {
	return slices.Contains(t[from], to)
}

func (t Transitions[S]) Known(s S) bool {
	_, ok := t[s]
	return ok
}

// Check returns ErrInvalidTransition when from → to is not in the table.
func (t Transitions[S]) Check(from, to S) error {
	if !t.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

var OrderTransitions = Transitions[OrderStatus]{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

var DeliveryTransitions = Transitions[DeliveryStatus]{
	DeliveryStatusPending:        {DeliveryStatusPickedUp, DeliveryStatusInTransit, DeliveryStatusCancelled},
	DeliveryStatusPickedUp:       {DeliveryStatusInTransit, DeliveryStatusCancelled},
	DeliveryStatusInTransit:      {DeliveryStatusOutForDelivery, DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusOutForDelivery: {DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusFailed:         {DeliveryStatusOutForDelivery, DeliveryStatusReturned},
	DeliveryStatusDelivered:      {},
	DeliveryStatusReturned:       {},
	DeliveryStatusCancelled:      {},
}

var TicketTransitions = Transitions[TicketStatus]{
	TicketStatusPending:   {TicketStatusActive, TicketStatusCancelled},
	TicketStatusActive:    {TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired},
	TicketStatusUsed:      {},
	TicketStatusCancelled: {},
	TicketStatusExpired:   {},
}

// CancellableOrderStatuses are the states an explicit cancel request accepts.
// A status update may still cancel later along OrderTransitions.
var CancellableOrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed}
