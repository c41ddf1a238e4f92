package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
	DeliveryStatusReturned       DeliveryStatus = "returned"
	DeliveryStatusCancelled      DeliveryStatus = "cancelled"
)

type DeliveryUrgency string

const (
	UrgencyStandard DeliveryUrgency = "standard"
	UrgencyExpress  DeliveryUrgency = "express"
	UrgencySameDay  DeliveryUrgency = "same_day"
)

type TrackingEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Status      DeliveryStatus `json:"status"`
	Location    string         `json:"location,omitempty"`
	Description string         `json:"description,omitempty"`
}

type DeliveryAttempt struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
	Note      string         `json:"note,omitempty"`
}

type Delivery struct {
	ID                string            `json:"id"`
	OrderID           *string           `json:"orderId,omitempty"`
	TrackingNumber    string            `json:"trackingNumber"`
	Carrier           string            `json:"carrier,omitempty"`
	Status            DeliveryStatus    `json:"status"`
	EstimatedDelivery *time.Time        `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time        `json:"actualDelivery,omitempty"`
	Address           Address           `json:"address"`
	TrackingEvents    []TrackingEvent   `json:"trackingEvents"`
	Attempts          []DeliveryAttempt `json:"attempts"`
	PickupAddress     *Address          `json:"pickupAddress,omitempty"`
	Urgency           DeliveryUrgency   `json:"urgency,omitempty"`
	Price             *decimal.Decimal  `json:"price,omitempty"`
	BusinessID        string            `json:"businessId,omitempty"`
	CustomerID        string            `json:"customerId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (d Delivery) AdHoc() bool {
	return d.OrderID == nil
}

func (d Delivery) Clone() Delivery {
	c := d
	c.TrackingEvents = slices.Clone(d.TrackingEvents)
	c.Attempts = slices.Clone(d.Attempts)
	if d.OrderID != nil {
		id := *d.OrderID
		c.OrderID = &id
	}
	if d.PickupAddress != nil {
		a := *d.PickupAddress
		c.PickupAddress = &a
	}
	return c
}
