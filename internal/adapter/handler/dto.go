package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/core/service"
)

// Request types are shared by the HTTP and gRPC surfaces.

type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ProcessSaleRequest struct {
	CustomerID     string            `json:"customerId"`
	BusinessID     string            `json:"businessId,omitempty"`
	Items          []LineRequest     `json:"items"`
	PaymentMethod  string            `json:"paymentMethod,omitempty"`
	DiscountCodes  []string          `json:"discountCodes,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

func (r ProcessSaleRequest) command() service.ProcessSaleCommand {
	return service.ProcessSaleCommand{
		CustomerID:     r.CustomerID,
		BusinessID:     r.BusinessID,
		Items:          lines(r.Items),
		PaymentMethod:  r.PaymentMethod,
		DiscountCodes:  r.DiscountCodes,
		Metadata:       r.Metadata,
		IdempotencyKey: r.IdempotencyKey,
	}
}

type RefundSaleRequest struct {
	SaleID string           `json:"saleId,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason"`
}

type GetSaleRequest struct {
	SaleID string `json:"saleId"`
}

type CreateOrderRequest struct {
	CustomerID      string          `json:"customerId"`
	BusinessID      string          `json:"businessId,omitempty"`
	Items           []LineRequest   `json:"items"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	DiscountCodes   []string        `json:"discountCodes,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty"`
}

func (r CreateOrderRequest) command() service.CreateOrderCommand {
	return service.CreateOrderCommand{
		CustomerID:      r.CustomerID,
		BusinessID:      r.BusinessID,
		Items:           lines(r.Items),
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
		PaymentMethod:   r.PaymentMethod,
		DiscountCodes:   r.DiscountCodes,
		IdempotencyKey:  r.IdempotencyKey,
	}
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId,omitempty"`
	Reason  string `json:"reason"`
}

type RecordPaymentRequest struct {
	Reference string `json:"reference,omitempty"`
}

type CreateDeliveryRequest struct {
	OrderID           *string          `json:"orderId,omitempty"`
	Address           domain.Address   `json:"address"`
	PickupAddress     *domain.Address  `json:"pickupAddress,omitempty"`
	Urgency           string           `json:"urgency,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	Carrier           string           `json:"carrier,omitempty"`
	BusinessID        string           `json:"businessId,omitempty"`
	CustomerID        string           `json:"customerId,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery,omitempty"`
}

func (r CreateDeliveryRequest) command() service.CreateDeliveryCommand {
	return service.CreateDeliveryCommand{
		OrderID:           r.OrderID,
		Address:           r.Address,
		PickupAddress:     r.PickupAddress,
		Urgency:           domain.DeliveryUrgency(r.Urgency),
		Price:             r.Price,
		Carrier:           r.Carrier,
		BusinessID:        r.BusinessID,
		CustomerID:        r.CustomerID,
		EstimatedDelivery: r.EstimatedDelivery,
	}
}

type UpdateDeliveryStatusRequest struct {
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
	Note     string `json:"note,omitempty"`
}

type TrackingEventRequest struct {
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
}

type CreateTicketRequest struct {
	ProductID  string           `json:"productId"`
	VariantID  *string          `json:"variantId,omitempty"`
	SaleID     *string          `json:"saleId,omitempty"`
	UserID     string           `json:"userId"`
	TicketType string           `json:"ticketType,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
}

func (r CreateTicketRequest) command() service.CreateTicketCommand {
	return service.CreateTicketCommand{
		ProductID:  r.ProductID,
		VariantID:  r.VariantID,
		SaleID:     r.SaleID,
		UserID:     r.UserID,
		TicketType: r.TicketType,
		Price:      r.Price,
	}
}

func lines(in []LineRequest) []service.SaleLine {
	out := make([]service.SaleLine, 0, len(in))
	for _, l := range in {
		out = append(out, service.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}
