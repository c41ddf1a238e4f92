package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending           SaleStatus = "pending"
	SaleStatusCompleted         SaleStatus = "completed"
	SaleStatusRefunded          SaleStatus = "refunded"
	SaleStatusPartiallyRefunded SaleStatus = "partially_refunded"
	SaleStatusCancelled         SaleStatus = "cancelled"
)

type SaleItem struct {
	ProductID      string          `json:"productId"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
	// CategoryID is carried for discount scoping only.
	CategoryID string `json:"-"`
}

type TaxDetail struct {
	Name          string          `json:"name"`
	Rate          decimal.Decimal `json:"rate"`
	TaxableAmount decimal.Decimal `json:"taxableAmount"`
	Amount        decimal.Decimal `json:"amount"`
}

type PaymentDetails struct {
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paidAt,omitzero"`
}

type RefundRecord struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Sale struct {
	ID                string             `json:"id"`
	TransactionID     string             `json:"transactionId"`
	CustomerID        string             `json:"customerId"`
	BusinessID        string             `json:"businessId,omitempty"`
	Items             []SaleItem         `json:"items"`
	SubtotalAmount    decimal.Decimal    `json:"subtotalAmount"`
	TaxAmount         decimal.Decimal    `json:"taxAmount"`
	DiscountAmount    decimal.Decimal    `json:"discountAmount"`
	TotalAmount       decimal.Decimal    `json:"totalAmount"`
	Currency          string             `json:"currency"`
	Status            SaleStatus         `json:"status"`
	AppliedDiscounts  []AppliedDiscount  `json:"appliedDiscounts"`
	RejectedDiscounts []RejectedDiscount `json:"rejectedDiscounts,omitempty"`
	TaxDetails        []TaxDetail        `json:"taxDetails"`
	Payment           PaymentDetails     `json:"paymentDetails"`
	Refunds           []RefundRecord     `json:"refunds,omitempty"`
	OrderID           *string            `json:"orderId,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// RefundedAmount sums every refund recorded against the sale.
func (s Sale) RefundedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Refunds {
		total = total.Add(r.Amount)
	}
	return total
}

// RefundableBalance is what remains of the sale total after refunds.
func (s Sale) RefundableBalance() decimal.Decimal {
	return s.TotalAmount.Sub(s.RefundedAmount())
}

func (s Sale) Clone() Sale {
	c := s
	c.Items = slices.Clone(s.Items)
	c.AppliedDiscounts = slices.Clone(s.AppliedDiscounts)
	c.RejectedDiscounts = slices.Clone(s.RejectedDiscounts)
	c.TaxDetails = slices.Clone(s.TaxDetails)
	c.Refunds = slices.Clone(s.Refunds)
	if s.OrderID != nil {
		id := *s.OrderID
		c.OrderID = &id
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
