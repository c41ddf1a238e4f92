package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

const variantSeparator = " - "

type CreateTicketCommand struct {
	ProductID  string
	VariantID  *string
	SaleID     *string
	UserID     string
	TicketType string
	Price      *decimal.Decimal
}

type TicketServiceDeps struct {
	Store  port.Transactor
	Logger *zap.Logger
	Now    func() time.Time
}

// TicketService issues access tickets for event products.
type TicketService struct {
	store  port.Transactor
	logger *zap.Logger
	now    func() time.Time
}

func NewTicketService(deps TicketServiceDeps) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		store:  deps.Store,
		logger: logger,
		now:    func() time.Time { return now().UTC() },
	}
}

// IssueFromSale creates one pending ticket per unit of every event-typed
// line in the sale. Lines for unknown or non-event products are skipped.
func (s *TicketService) IssueFromSale(ctx context.Context, tx port.Tx, sale domain.Sale) ([]domain.Ticket, error) {
	events, err := s.eventProducts(ctx, tx, sale)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	now := s.now()
	saleID := sale.ID
	var tickets []domain.Ticket
	for _, item := range sale.Items {
		if _, ok := events[item.ProductID]; !ok {
			continue
		}
		ticketType := TicketTypeFromName(item.Name)
		for n := 0; n < item.Quantity; n++ {
			id := newID()
			sid := saleID
			tickets = append(tickets, domain.Ticket{
				ID:         id,
				ProductID:  item.ProductID,
				SaleID:     &sid,
				UserID:     sale.CustomerID,
				TicketType: ticketType,
				Price:      item.UnitPrice,
				Status:     domain.TicketStatusPending,
				QRPayload:  qrPayload(id, item.ProductID),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}

	if err := tx.Tickets().CreateBatch(ctx, tickets); err != nil {
		return nil, fmt.Errorf("create tickets: %w", err)
	}
	return tickets, nil
}

func (s *TicketService) eventProducts(ctx context.Context, tx port.Tx, sale domain.Sale) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(sale.Items))
	for _, it := range sale.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := tx.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	events := make(map[string]domain.Product)
	for _, p := range products {
		if p.IsEvent() {
			events[p.ID] = p
		}
	}
	return events, nil
}

func (s *TicketService) CreateTicket(ctx context.Context, cmd CreateTicketCommand) (domain.Ticket, error) {
	if strings.TrimSpace(cmd.ProductID) == "" || strings.TrimSpace(cmd.UserID) == "" {
		return domain.Ticket{}, fmt.Errorf("%w: product id and user id are required", domain.ErrValidation)
	}

	var ticket domain.Ticket
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		products, err := tx.Products().FindByIDs(ctx, []string{cmd.ProductID})
		if err != nil {
			return fmt.Errorf("find product: %w", err)
		}
		if len(products) == 0 {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, cmd.ProductID)
		}
		p := products[0]
		if !p.IsEvent() {
			return fmt.Errorf("%w: %s is %s", domain.ErrProductNotEventType, p.ID, p.Type)
		}

		now := s.now()
		ticketType := strings.TrimSpace(cmd.TicketType)
		if ticketType == "" {
			ticketType = domain.DefaultTicketType
		}
		price := p.Price
		if cmd.Price != nil {
			price = *cmd.Price
		}
		id := newID()
		ticket = domain.Ticket{
			ID:         id,
			ProductID:  p.ID,
			VariantID:  cmd.VariantID,
			SaleID:     cmd.SaleID,
			UserID:     cmd.UserID,
			TicketType: ticketType,
			Price:      price,
			Status:     domain.TicketStatusPending,
			QRPayload:  qrPayload(id, p.ID),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.Tickets().CreateBatch(ctx, []domain.Ticket{ticket})
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return ticket, nil
}

// transitionForSale moves every ticket of the sale that may legally reach
// target. Tickets already past that point are left alone.
func (s *TicketService) transitionForSale(ctx context.Context, tx port.Tx, saleID string, target domain.TicketStatus) (int, error) {
	tickets, err := tx.Tickets().ListBySale(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("list tickets: %w", err)
	}
	moved := 0
	for _, t := range tickets {
		if !domain.TicketTransitions.CanTransition(t.Status, target) {
			continue
		}
		if err := tx.Tickets().UpdateStatus(ctx, t.ID, target); err != nil {
			return moved, fmt.Errorf("update ticket %s: %w", t.ID, err)
		}
		moved++
	}
	return moved, nil
}

// TicketTypeFromName extracts the variant label from an item's display
// name: the segment between the first " - " and the next one, so both
// "Concert - VIP" and "Show - VIP - Front" give "VIP".
func TicketTypeFromName(name string) string {
	_, rest, found := strings.Cut(name, variantSeparator)
	variant, _, _ := strings.Cut(rest, variantSeparator)
	variant = strings.TrimSpace(variant)
	if !found || variant == "" {
		return domain.DefaultTicketType
	}
	return variant
}

func qrPayload(ticketID, productID string) string {
	return "TKT:" + ticketID + ":" + productID
}
