package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type OrderItem struct {
	SaleItem
	FulfilledQuantity int    `json:"fulfilledQuantity"`
	FulfillmentStatus string `json:"fulfillmentStatus"`
}

type RefundDetails struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	RefundedAt    time.Time       `json:"refundedAt"`
}

type Order struct {
	ID               string               `json:"id"`
	OrderNumber      string               `json:"orderNumber"`
	CustomerID       string               `json:"customerId"`
	SaleID           string               `json:"saleId"`
	Items            []OrderItem          `json:"items"`
	SubtotalAmount   decimal.Decimal      `json:"subtotalAmount"`
	TaxAmount        decimal.Decimal      `json:"taxAmount"`
	DiscountAmount   decimal.Decimal      `json:"discountAmount"`
	TotalAmount      decimal.Decimal      `json:"totalAmount"`
	Currency         string               `json:"currency"`
	AppliedDiscounts []AppliedDiscount    `json:"appliedDiscounts"`
	TaxDetails       []TaxDetail          `json:"taxDetails"`
	Status           OrderStatus          `json:"status"`
	StatusHistory    []StatusHistoryEntry `json:"statusHistory"`
	PaymentStatus    PaymentStatus        `json:"paymentStatus"`
	PaymentMethod    string               `json:"paymentMethod"`
	ShippingAddress  Address              `json:"shippingAddress"`
	BillingAddress   Address              `json:"billingAddress"`
	Refund           *RefundDetails       `json:"refundDetails,omitempty"`
	Version          int                  `json:"version"` // optimistic locking
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// RecordStatus sets the current status and appends the matching history
// entry. History is append-only; its last entry always mirrors Status.
func (o *Order) RecordStatus(status OrderStatus, at time.Time, note string) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{Status: status, Timestamp: at, Note: note})
	o.UpdatedAt = at
}

// Lines reports the purchased quantity per line item.
func (o Order) Lines() []LineQuantity {
	lines := make([]LineQuantity, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, LineQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

func (o Order) Clone() Order {
	c := o
	c.Items = slices.Clone(o.Items)
	c.AppliedDiscounts = slices.Clone(o.AppliedDiscounts)
	c.TaxDetails = slices.Clone(o.TaxDetails)
	c.StatusHistory = slices.Clone(o.StatusHistory)
	if o.Refund != nil {
		r := *o.Refund
		c.Refund = &r
	}
	return c
}

// OrderDetails is the read model returned for a single order.
type OrderDetails struct {
	Order      Order      `json:"order"`
	Deliveries []Delivery `json:"deliveries"`
	Tickets    []Ticket   `json:"tickets,omitempty"`
}
