package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

type SaleLine struct {
	ProductID string
	Quantity  int
}

type ProcessSaleCommand struct {
	CustomerID     string
	BusinessID     string
	Items          []SaleLine
	PaymentMethod  string
	DiscountCodes  []string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundSaleCommand struct {
	SaleID string
	// Amount defaults to the remaining refundable balance.
	Amount *decimal.Decimal
	Reason string
}

type SaleServiceDeps struct {
	Store    port.Transactor
	Cache    port.CacheRepository
	Pricing  *PricingEngine
	Guard    *InventoryGuard
	Currency string
	Logger   *zap.Logger
	Now      func() time.Time
}

// SaleService is the sale engine: it turns a cart into a persisted sale.
type SaleService struct {
	store    port.Transactor
	cache    port.CacheRepository
	pricing  *PricingEngine
	guard    *InventoryGuard
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func NewSaleService(deps SaleServiceDeps) *SaleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingEngine(nil, nil)
	}
	guard := deps.Guard
	if guard == nil {
		guard = NewInventoryGuard(logger)
	}
	return &SaleService{
		store:    deps.Store,
		cache:    deps.Cache,
		pricing:  pricing,
		guard:    guard,
		currency: deps.Currency,
		logger:   logger,
		now:      func() time.Time { return now().UTC() },
	}
}

func (s *SaleService) ProcessSale(ctx context.Context, cmd ProcessSaleCommand) (domain.Sale, error) {
	release, err := reserveIdempotency(ctx, s.cache, s.logger, "sale", cmd.IdempotencyKey)
	if err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		var txErr error
		sale, txErr = s.ProcessSaleTx(ctx, tx, cmd)
		return txErr
	})
	if err != nil {
		release()
		return domain.Sale{}, err
	}

	s.logger.Info("sale processed",
		zap.String("sale_id", sale.ID),
		zap.String("customer_id", sale.CustomerID),
		zap.String("total", sale.TotalAmount.String()),
	)
	return sale, nil
}

// ProcessSaleTx runs the sale algorithm inside the caller's transaction.
// Every business check happens before the first write.
func (s *SaleService) ProcessSaleTx(ctx context.Context, tx port.Tx, cmd ProcessSaleCommand) (domain.Sale, error) {
	if err := validateSaleCommand(cmd); err != nil {
		return domain.Sale{}, err
	}
	lines := saleLines(cmd.Items)

	products, err := s.guard.Load(ctx, tx.Products(), lines)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.guard.Check(products, lines); err != nil {
		return domain.Sale{}, err
	}

	currency := ""
	items := make([]domain.SaleItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		p := products[line.ProductID]
		if p.Status != "" && p.Status != domain.ProductStatusActive {
			return domain.Sale{}, fmt.Errorf("%w: product %s is %s", domain.ErrInvalidState, p.ID, p.Status)
		}
		pc := p.Currency
		if pc == "" {
			pc = s.currency
		}
		if currency == "" {
			currency = pc
		} else if pc != currency {
			return domain.Sale{}, fmt.Errorf("%w: mixed currencies %s and %s", domain.ErrValidation, currency, pc)
		}
		items = append(items, NewSaleItem(p, line.Quantity))
	}

	now := s.now()
	candidates, err := s.resolveDiscounts(ctx, tx.Discounts(), cmd.DiscountCodes)
	if err != nil {
		return domain.Sale{}, err
	}
	quote := s.pricing.Price(items, candidates, cmd.CustomerID, now)
	for _, r := range quote.Rejected {
		s.logger.Warn("discount code rejected", zap.String("code", r.Code), zap.String("reason", r.Reason))
	}

	sale := domain.Sale{
		ID:                newID(),
		TransactionID:     newTransactionID(saleTxnPrefix),
		CustomerID:        cmd.CustomerID,
		BusinessID:        cmd.BusinessID,
		Items:             quote.Items,
		SubtotalAmount:    quote.Totals.Subtotal,
		TaxAmount:         quote.Totals.Tax,
		DiscountAmount:    quote.Totals.Discount,
		TotalAmount:       quote.Totals.Total,
		Currency:          currency,
		Status:            domain.SaleStatusPending,
		AppliedDiscounts:  quote.Applied,
		RejectedDiscounts: quote.Rejected,
		TaxDetails:        quote.TaxDetails,
		Payment:           domain.PaymentDetails{Method: cmd.PaymentMethod},
		Metadata:          cmd.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := tx.Sales().Create(ctx, sale); err != nil {
		return domain.Sale{}, fmt.Errorf("create sale: %w", err)
	}
	if err := s.guard.Take(ctx, tx.Products(), products, lines); err != nil {
		return domain.Sale{}, err
	}
	for _, a := range quote.Applied {
		if err := tx.Discounts().IncrementUsage(ctx, a.Code); err != nil {
			return domain.Sale{}, fmt.Errorf("record discount usage: %w", err)
		}
	}
	return sale, nil
}

func (s *SaleService) resolveDiscounts(ctx context.Context, repo port.DiscountRepository, codes []string) ([]DiscountCandidate, error) {
	seen := make(map[string]struct{}, len(codes))
	candidates := make([]DiscountCandidate, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		d, err := repo.FindByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("find discount %s: %w", code, err)
		}
		candidates = append(candidates, DiscountCandidate{Code: code, Discount: d})
	}
	return candidates, nil
}

func (s *SaleService) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	var sale domain.Sale
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		found, err := tx.Sales().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get sale: %w", err)
		}
		if found == nil {
			return fmt.Errorf("%w: %s", domain.ErrSaleNotFound, id)
		}
		sale = *found
		return nil
	})
	return sale, err
}

// RefundSale records a full or partial refund against a paid sale.
func (s *SaleService) RefundSale(ctx context.Context, cmd RefundSaleCommand) (domain.Sale, error) {
	if cmd.Amount != nil && !cmd.Amount.IsPositive() {
		return domain.Sale{}, fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}

	var (
		sale   domain.Sale
		linked *domain.Order
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		found, err := tx.Sales().Get(ctx, cmd.SaleID)
		if err != nil {
			return fmt.Errorf("get sale: %w", err)
		}
		if found == nil {
			return fmt.Errorf("%w: %s", domain.ErrSaleNotFound, cmd.SaleID)
		}
		sale = *found

		if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyRefunded {
			return fmt.Errorf("%w: sale is %s", domain.ErrInvalidState, sale.Status)
		}
		balance := sale.RefundableBalance()
		amount := balance
		if cmd.Amount != nil {
			amount = cmd.Amount.Round(moneyScale)
		}
		if amount.GreaterThan(balance) {
			return fmt.Errorf("%w: requested %s, balance %s", domain.ErrRefundExceedsBalance, amount, balance)
		}

		now := s.now()
		record := domain.RefundRecord{
			TransactionID: newTransactionID(refundTxnPrefix),
			Amount:        amount,
			Reason:        cmd.Reason,
			CreatedAt:     now,
		}
		sale.Refunds = append(sale.Refunds, record)
		if sale.RefundableBalance().IsZero() {
			sale.Status = domain.SaleStatusRefunded
		} else {
			sale.Status = domain.SaleStatusPartiallyRefunded
		}
		sale.UpdatedAt = now
		if err := tx.Sales().Update(ctx, sale); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}
		if sale.Status != domain.SaleStatusRefunded {
			return nil
		}
		linked, err = s.markOrderRefunded(ctx, tx, sale, record, now)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale refunded", zap.String("sale_id", sale.ID), zap.String("status", string(sale.Status)))
	if linked != nil {
		invalidateOrder(ctx, s.cache, s.logger, linked.ID, linked.Version)
	}
	return sale, nil
}

// markOrderRefunded moves a paid order linked to a fully refunded sale to
// payment status refunded. It returns nil when there is nothing to update.
func (s *SaleService) markOrderRefunded(ctx context.Context, tx port.Tx, sale domain.Sale, record domain.RefundRecord, now time.Time) (*domain.Order, error) {
	if sale.OrderID == nil {
		return nil, nil
	}
	order, err := tx.Orders().Get(ctx, *sale.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.PaymentStatus != domain.PaymentStatusPaid {
		return nil, nil
	}
	markRefunded(order, record.TransactionID, sale.RefundedAmount(), record.Reason, now)
	order.UpdatedAt = now
	updated, err := tx.Orders().Update(ctx, *order)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return &updated, nil
}

func validateSaleCommand(cmd ProcessSaleCommand) error {
	var problems []string
	if strings.TrimSpace(cmd.CustomerID) == "" {
		problems = append(problems, "customer id is required")
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		problems = append(problems, "payment method is required")
	}
	if len(cmd.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, it := range cmd.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].productId is required", i))
		}
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func saleLines(items []SaleLine) []domain.LineQuantity {
	lines := make([]domain.LineQuantity, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.LineQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// isDomainFailure reports whether err carries a classified business outcome
// rather than an infrastructure fault.
func isDomainFailure(err error) bool {
	var de *domain.Error
	return errors.As(err, &de)
}
