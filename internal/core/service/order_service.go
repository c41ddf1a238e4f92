package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

const (
	orderNumberMetadataKey = "orderNumber"
	unfulfilled            = "unfulfilled"
)

type CreateOrderCommand struct {
	CustomerID      string
	BusinessID      string
	Items           []SaleLine
	ShippingAddress domain.Address
	// BillingAddress defaults to the shipping address.
	BillingAddress *domain.Address
	PaymentMethod  string
	DiscountCodes  []string
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order    domain.Order    `json:"order"`
	Sale     domain.Sale     `json:"sale"`
	Delivery domain.Delivery `json:"delivery"`
	Tickets  []domain.Ticket `json:"tickets,omitempty"`
}

type OrderServiceDeps struct {
	Store       port.Transactor
	Cache       port.CacheRepository
	Sales       *SaleService
	Deliveries  *DeliveryService
	Tickets     *TicketService
	Compensator *Compensator
	Logger      *zap.Logger
	Now         func() time.Time
}

// OrderService orchestrates sale, order, delivery and tickets as one unit.
type OrderService struct {
	store       port.Transactor
	cache       port.CacheRepository
	sales       *SaleService
	deliveries  *DeliveryService
	tickets     *TicketService
	compensator *Compensator
	logger      *zap.Logger
	now         func() time.Time
}

func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	if deps.Sales == nil || deps.Deliveries == nil || deps.Tickets == nil || deps.Compensator == nil {
		return nil, errors.New("order service: sale, delivery, ticket and compensator services are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		store:       deps.Store,
		cache:       deps.Cache,
		sales:       deps.Sales,
		deliveries:  deps.Deliveries,
		tickets:     deps.Tickets,
		compensator: deps.Compensator,
		logger:      logger,
		now:         func() time.Time { return now().UTC() },
	}, nil
}

// CreateOrder records the sale, the order, its first delivery and any event
// tickets in a single transaction. The sale is part of that transaction, so
// a failure after it rolls back its inventory decrement as well.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	if err := validateAddress("shippingAddress", cmd.ShippingAddress); err != nil {
		return CreateOrderResult{}, err
	}
	release, err := reserveIdempotency(ctx, s.cache, s.logger, "order", cmd.IdempotencyKey)
	if err != nil {
		return CreateOrderResult{}, err
	}

	var result CreateOrderResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		now := s.now()
		orderNumber := newOrderNumber(now)

		sale, err := s.sales.ProcessSaleTx(ctx, tx, ProcessSaleCommand{
			CustomerID:    cmd.CustomerID,
			BusinessID:    cmd.BusinessID,
			Items:         cmd.Items,
			PaymentMethod: cmd.PaymentMethod,
			DiscountCodes: cmd.DiscountCodes,
			Metadata:      map[string]string{orderNumberMetadataKey: orderNumber},
		})
		if err != nil {
			return err
		}

		order := newOrder(sale, cmd, orderNumber, now)
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		orderID := order.ID
		sale.OrderID = &orderID
		if err := tx.Sales().Update(ctx, sale); err != nil {
			return fmt.Errorf("link sale to order: %w", err)
		}

		delivery, err := s.deliveries.createForOrderTx(ctx, tx, order)
		if err != nil {
			return err
		}

		tickets, err := s.tickets.IssueFromSale(ctx, tx, sale)
		if err != nil {
			return err
		}

		result = CreateOrderResult{Order: order, Sale: sale, Delivery: delivery, Tickets: tickets}
		return nil
	})
	if err != nil {
		release()
		if !isDomainFailure(err) {
			s.logger.Error("order creation failed", zap.String("customer_id", cmd.CustomerID), zap.Error(err))
		}
		return CreateOrderResult{}, err
	}

	s.logger.Info("order created",
		zap.String("order_id", result.Order.ID),
		zap.String("order_number", result.Order.OrderNumber),
		zap.String("sale_id", result.Sale.ID),
		zap.Int("tickets", len(result.Tickets)),
	)
	s.fillCache(ctx, domain.OrderDetails{
		Order:      result.Order,
		Deliveries: []domain.Delivery{result.Delivery},
		Tickets:    result.Tickets,
	})
	return result, nil
}

func newOrder(sale domain.Sale, cmd CreateOrderCommand, orderNumber string, now time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(sale.Items))
	for _, it := range sale.Items {
		items = append(items, domain.OrderItem{SaleItem: it, FulfillmentStatus: unfulfilled})
	}
	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}
	order := domain.Order{
		ID:               newID(),
		OrderNumber:      orderNumber,
		CustomerID:       sale.CustomerID,
		SaleID:           sale.ID,
		Items:            items,
		SubtotalAmount:   sale.SubtotalAmount,
		TaxAmount:        sale.TaxAmount,
		DiscountAmount:   sale.DiscountAmount,
		TotalAmount:      sale.TotalAmount,
		Currency:         sale.Currency,
		AppliedDiscounts: sale.AppliedDiscounts,
		TaxDetails:       sale.TaxDetails,
		PaymentStatus:    domain.PaymentStatusPending,
		PaymentMethod:    cmd.PaymentMethod,
		ShippingAddress:  cmd.ShippingAddress,
		BillingAddress:   billing,
		Version:          1,
		CreatedAt:        now,
	}
	order.RecordStatus(domain.OrderStatusPending, now, "Order created")
	return order
}

// GetOrder returns the order with its deliveries and tickets, served from
// the cache when a current copy is there.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.OrderDetails, error) {
	if s.cache != nil {
		cached, err := s.cache.GetOrderDetails(ctx, id)
		if err != nil {
			s.logger.Warn("order cache read failed", zap.String("order_id", id), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	var details domain.OrderDetails
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		order, err := getOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		deliveries, err := tx.Deliveries().ListByOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}
		tickets, err := tx.Tickets().ListBySale(ctx, order.SaleID)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		if deliveries == nil {
			deliveries = []domain.Delivery{}
		}
		details = domain.OrderDetails{Order: order, Deliveries: deliveries, Tickets: tickets}
		return nil
	})
	if err != nil {
		return domain.OrderDetails{}, err
	}
	s.fillCache(ctx, details)
	return details, nil
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrValidation)
	}
	var orders []domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		var err error
		orders, err = tx.Orders().ListByCustomer(ctx, customerID)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		return nil
	})
	if orders == nil && err == nil {
		orders = []domain.Order{}
	}
	return orders, err
}

// UpdateStatus applies one edge of the order state machine. Every cancel
// goes through the compensator, whatever stage the order has reached.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, note string) (domain.Order, error) {
	if !domain.OrderTransitions.Known(status) {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, status)
	}

	var order domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		current, err := getOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.OrderTransitions.Check(current.Status, status); err != nil {
			return err
		}
		if status == domain.OrderStatusCancelled {
			order, err = s.compensator.cancelTx(ctx, tx, current, note)
			return err
		}

		current.RecordStatus(status, s.now(), note)
		if status == domain.OrderStatusRefunded && current.PaymentStatus == domain.PaymentStatusPaid {
			if err := s.compensator.refundTx(ctx, tx, &current, note); err != nil {
				return err
			}
		}
		order, err = tx.Orders().Update(ctx, current)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order status updated", zap.String("order_id", order.ID), zap.String("status", string(order.Status)))
	invalidateOrder(ctx, s.cache, s.logger, order.ID, order.Version)
	return order, nil
}

// RecordPayment marks a pending payment as paid, completes the sale and
// activates its tickets.
func (s *OrderService) RecordPayment(ctx context.Context, id, reference string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		current, err := getOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.PaymentStatus != domain.PaymentStatusPending || current.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: payment is %s, order is %s", domain.ErrInvalidState, current.PaymentStatus, current.Status)
		}

		now := s.now()
		current.PaymentStatus = domain.PaymentStatusPaid
		current.UpdatedAt = now
		if order, err = tx.Orders().Update(ctx, current); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		sale, err := tx.Sales().Get(ctx, current.SaleID)
		if err != nil {
			return fmt.Errorf("get sale: %w", err)
		}
		if sale != nil {
			sale.Status = domain.SaleStatusCompleted
			sale.Payment.Reference = reference
			sale.Payment.PaidAt = now
			sale.UpdatedAt = now
			if err := tx.Sales().Update(ctx, *sale); err != nil {
				return fmt.Errorf("update sale: %w", err)
			}
		}
		_, err = s.tickets.transitionForSale(ctx, tx, current.SaleID, domain.TicketStatusActive)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order payment recorded", zap.String("order_id", order.ID))
	invalidateOrder(ctx, s.cache, s.logger, order.ID, order.Version)
	return order, nil
}

func (s *OrderService) fillCache(ctx context.Context, details domain.OrderDetails) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetOrderDetails(ctx, details); err != nil {
		s.logger.Warn("order cache fill failed", zap.String("order_id", details.Order.ID), zap.Error(err))
	}
}

func getOrder(ctx context.Context, tx port.Tx, id string) (domain.Order, error) {
	order, err := tx.Orders().Get(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return *order, nil
}
