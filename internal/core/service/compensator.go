package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

type CompensatorDeps struct {
	Store      port.Transactor
	Cache      port.CacheRepository
	Guard      *InventoryGuard
	Deliveries *DeliveryService
	Tickets    *TicketService
	Logger     *zap.Logger
	Now        func() time.Time
}

// Compensator reverses the side effects of an order when it is cancelled:
// stock goes back, payment is marked refunded, deliveries and tickets stop.
type Compensator struct {
	store      port.Transactor
	cache      port.CacheRepository
	guard      *InventoryGuard
	deliveries *DeliveryService
	tickets    *TicketService
	logger     *zap.Logger
	now        func() time.Time
}

func NewCompensator(deps CompensatorDeps) *Compensator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	guard := deps.Guard
	if guard == nil {
		guard = NewInventoryGuard(logger)
	}
	return &Compensator{
		store:      deps.Store,
		cache:      deps.Cache,
		guard:      guard,
		deliveries: deps.Deliveries,
		tickets:    deps.Tickets,
		logger:     logger,
		now:        func() time.Time { return now().UTC() },
	}
}

func (c *Compensator) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	var order domain.Order
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		current, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyCancelled, orderID)
		}
		if !isCancellable(current.Status) {
			return fmt.Errorf("%w: order is %s, only pending or confirmed orders can be cancelled",
				domain.ErrInvalidState, current.Status)
		}
		order, err = c.cancelTx(ctx, tx, current, reason)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("payment_status", string(order.PaymentStatus)),
	)
	invalidateOrder(ctx, c.cache, c.logger, order.ID, order.Version)
	return order, nil
}

// cancelTx applies every compensating write inside tx. The caller has
// already checked that order may be cancelled.
func (c *Compensator) cancelTx(ctx context.Context, tx port.Tx, order domain.Order, reason string) (domain.Order, error) {
	now := c.now()
	reason = strings.TrimSpace(reason)
	note := "Order cancelled"
	if reason != "" {
		note += ": " + reason
	}

	sale, err := c.saleFor(ctx, tx, order)
	if err != nil {
		return domain.Order{}, err
	}
	order.RecordStatus(domain.OrderStatusCancelled, now, note)
	if order.PaymentStatus == domain.PaymentStatusPaid {
		settleRefund(&order, sale, reason, now)
	}

	if err := c.guard.Restore(ctx, tx.Products(), order.Lines()); err != nil {
		return domain.Order{}, err
	}

	updated, err := tx.Orders().Update(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	if sale != nil {
		if sale.Status == domain.SaleStatusPending {
			sale.Status = domain.SaleStatusCancelled
			sale.UpdatedAt = now
		}
		if err := tx.Sales().Update(ctx, *sale); err != nil {
			return domain.Order{}, fmt.Errorf("update sale: %w", err)
		}
	}
	if c.deliveries != nil {
		if err := c.deliveries.cancelPendingForOrder(ctx, tx, order.ID, reason, now); err != nil {
			return domain.Order{}, err
		}
	}
	if c.tickets != nil {
		if _, err := c.tickets.transitionForSale(ctx, tx, order.SaleID, domain.TicketStatusCancelled); err != nil {
			return domain.Order{}, err
		}
	}
	return updated, nil
}

// refundTx refunds whatever the order's sale still holds and records it on
// order. The caller persists order.
func (c *Compensator) refundTx(ctx context.Context, tx port.Tx, order *domain.Order, reason string) error {
	sale, err := c.saleFor(ctx, tx, *order)
	if err != nil {
		return err
	}
	settleRefund(order, sale, strings.TrimSpace(reason), c.now())
	if sale == nil {
		return nil
	}
	if err := tx.Sales().Update(ctx, *sale); err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	return nil
}

func (c *Compensator) saleFor(ctx context.Context, tx port.Tx, order domain.Order) (*domain.Sale, error) {
	sale, err := tx.Sales().Get(ctx, order.SaleID)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		c.logger.Warn("order has no sale", zap.String("order_id", order.ID), zap.String("sale_id", order.SaleID))
	}
	return sale, nil
}

// settleRefund marks order refunded. Only the sale's remaining balance is
// refunded, so a sale refunded earlier is never paid back twice. Without a
// sale the order total is used.
func settleRefund(order *domain.Order, sale *domain.Sale, reason string, now time.Time) {
	if sale == nil {
		markRefunded(order, newTransactionID(refundTxnPrefix), order.TotalAmount, reason, now)
		return
	}
	txnID := ""
	if record, ok := refundBalance(sale, reason, now); ok {
		txnID = record.TransactionID
	} else if n := len(sale.Refunds); n > 0 {
		txnID = sale.Refunds[n-1].TransactionID
	}
	markRefunded(order, txnID, sale.RefundedAmount(), reason, now)
}

// refundBalance appends a refund for the sale's outstanding balance. It
// reports false when the sale was never paid or nothing is left.
func refundBalance(sale *domain.Sale, reason string, now time.Time) (domain.RefundRecord, bool) {
	if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyRefunded {
		return domain.RefundRecord{}, false
	}
	balance := sale.RefundableBalance()
	if !balance.IsPositive() {
		return domain.RefundRecord{}, false
	}
	record := domain.RefundRecord{
		TransactionID: newTransactionID(refundTxnPrefix),
		Amount:        balance,
		Reason:        reason,
		CreatedAt:     now,
	}
	sale.Refunds = append(sale.Refunds, record)
	sale.Status = domain.SaleStatusRefunded
	sale.UpdatedAt = now
	return record, true
}

func markRefunded(order *domain.Order, txnID string, amount decimal.Decimal, reason string, now time.Time) {
	order.PaymentStatus = domain.PaymentStatusRefunded
	order.Refund = &domain.RefundDetails{
		TransactionID: txnID,
		Amount:        amount,
		Reason:        reason,
		RefundedAt:    now,
	}
}

func isCancellable(status domain.OrderStatus) bool {
	return slices.Contains(domain.CancellableOrderStatuses, status)
}
