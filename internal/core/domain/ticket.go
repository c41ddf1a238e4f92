package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
	TicketStatusPending   TicketStatus = "pending"
)

const DefaultTicketType = "Regular"

type Ticket struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"productId"`
	VariantID  *string         `json:"variantId,omitempty"`
	SaleID     *string         `json:"saleId,omitempty"`
	UserID     string          `json:"userId"`
	TicketType string          `json:"ticketType"`
	Price      decimal.Decimal `json:"price"`
	Status     TicketStatus    `json:"status"`
	QRPayload  string          `json:"qrPayload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
