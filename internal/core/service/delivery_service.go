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

const defaultDeliveryEstimate = 7 * 24 * time.Hour

type CreateDeliveryCommand struct {
	// OrderID is nil for ad hoc deliveries.
	OrderID           *string
	Address           domain.Address
	PickupAddress     *domain.Address
	Urgency           domain.DeliveryUrgency
	Price             *decimal.Decimal
	Carrier           string
	BusinessID        string
	CustomerID        string
	EstimatedDelivery *time.Time
}

type TrackingEventInput struct {
	Location    string
	Description string
}

type DeliveryServiceDeps struct {
	Store    port.Transactor
	Cache    port.CacheRepository
	Estimate time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// DeliveryService tracks shipments, order-linked or ad hoc.
type DeliveryService struct {
	store    port.Transactor
	cache    port.CacheRepository
	estimate time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewDeliveryService(deps DeliveryServiceDeps) *DeliveryService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	estimate := deps.Estimate
	if estimate <= 0 {
		estimate = defaultDeliveryEstimate
	}
	return &DeliveryService{
		store:    deps.Store,
		cache:    deps.Cache,
		estimate: estimate,
		logger:   logger,
		now:      func() time.Time { return now().UTC() },
	}
}

// createForOrderTx records the initial delivery of a freshly created order.
func (s *DeliveryService) createForOrderTx(ctx context.Context, tx port.Tx, order domain.Order) (domain.Delivery, error) {
	now := s.now()
	eta := now.Add(s.estimate)
	orderID := order.ID
	d := domain.Delivery{
		ID:                newID(),
		OrderID:           &orderID,
		TrackingNumber:    newTrackingNumber(now),
		Status:            domain.DeliveryStatusPending,
		EstimatedDelivery: &eta,
		Address:           order.ShippingAddress,
		TrackingEvents: []domain.TrackingEvent{{
			Timestamp:   now,
			Status:      domain.DeliveryStatusPending,
			Description: "Delivery created for order " + order.OrderNumber,
		}},
		Attempts:   []domain.DeliveryAttempt{},
		Urgency:    domain.UrgencyStandard,
		CustomerID: order.CustomerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Deliveries().Create(ctx, d); err != nil {
		return domain.Delivery{}, fmt.Errorf("create delivery: %w", err)
	}
	return d, nil
}

func (s *DeliveryService) CreateDelivery(ctx context.Context, cmd CreateDeliveryCommand) (domain.Delivery, error) {
	if err := validateAddress("address", cmd.Address); err != nil {
		return domain.Delivery{}, err
	}
	urgency := cmd.Urgency
	switch urgency {
	case "":
		urgency = domain.UrgencyStandard
	case domain.UrgencyStandard, domain.UrgencyExpress, domain.UrgencySameDay:
	default:
		return domain.Delivery{}, fmt.Errorf("%w: unknown urgency %q", domain.ErrValidation, urgency)
	}
	if cmd.Price != nil && cmd.Price.IsNegative() {
		return domain.Delivery{}, fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}

	var (
		delivery domain.Delivery
		version  = -1
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		now := s.now()
		eta := cmd.EstimatedDelivery
		if eta == nil {
			t := now.Add(s.estimate)
			eta = &t
		}
		delivery = domain.Delivery{
			ID:                newID(),
			OrderID:           cmd.OrderID,
			TrackingNumber:    newTrackingNumber(now),
			Carrier:           cmd.Carrier,
			Status:            domain.DeliveryStatusPending,
			EstimatedDelivery: eta,
			Address:           cmd.Address,
			TrackingEvents: []domain.TrackingEvent{{
				Timestamp:   now,
				Status:      domain.DeliveryStatusPending,
				Description: "Delivery created",
			}},
			Attempts:      []domain.DeliveryAttempt{},
			PickupAddress: cmd.PickupAddress,
			Urgency:       urgency,
			Price:         cmd.Price,
			BusinessID:    cmd.BusinessID,
			CustomerID:    cmd.CustomerID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if cmd.OrderID != nil {
			v, err := touchOrder(ctx, tx, *cmd.OrderID, now)
			if err != nil {
				return err
			}
			version = v
		}
		return tx.Deliveries().Create(ctx, delivery)
	})
	if err != nil {
		return domain.Delivery{}, err
	}
	if delivery.OrderID != nil {
		invalidateOrder(ctx, s.cache, s.logger, *delivery.OrderID, version)
	}
	return delivery, nil
}

func (s *DeliveryService) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	var delivery domain.Delivery
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		d, err := getDelivery(ctx, tx, id)
		if err != nil {
			return err
		}
		delivery = d
		return nil
	})
	return delivery, err
}

// UpdateStatus moves a delivery along its transition table, appending a
// tracking event. Delivered and failed outcomes are also logged as attempts.
func (s *DeliveryService) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus, location, note string) (domain.Delivery, error) {
	if !domain.DeliveryTransitions.Known(status) {
		return domain.Delivery{}, fmt.Errorf("%w: unknown delivery status %q", domain.ErrValidation, status)
	}
	return s.mutate(ctx, id, func(d *domain.Delivery, now time.Time) error {
		if err := domain.DeliveryTransitions.Check(d.Status, status); err != nil {
			return err
		}
		d.Status = status
		d.TrackingEvents = append(d.TrackingEvents, domain.TrackingEvent{
			Timestamp:   now,
			Status:      status,
			Location:    location,
			Description: note,
		})
		switch status {
		case domain.DeliveryStatusDelivered:
			d.ActualDelivery = &now
			d.Attempts = append(d.Attempts, domain.DeliveryAttempt{Timestamp: now, Status: status, Note: note})
		case domain.DeliveryStatusFailed:
			d.Attempts = append(d.Attempts, domain.DeliveryAttempt{Timestamp: now, Status: status, Note: note})
		}
		return nil
	})
}

// AddTrackingEvent records a location update without changing status.
func (s *DeliveryService) AddTrackingEvent(ctx context.Context, id string, in TrackingEventInput) (domain.Delivery, error) {
	if strings.TrimSpace(in.Location) == "" && strings.TrimSpace(in.Description) == "" {
		return domain.Delivery{}, fmt.Errorf("%w: location or description is required", domain.ErrValidation)
	}
	return s.mutate(ctx, id, func(d *domain.Delivery, now time.Time) error {
		d.TrackingEvents = append(d.TrackingEvents, domain.TrackingEvent{
			Timestamp:   now,
			Status:      d.Status,
			Location:    in.Location,
			Description: in.Description,
		})
		return nil
	})
}

func (s *DeliveryService) mutate(ctx context.Context, id string, fn func(d *domain.Delivery, now time.Time) error) (domain.Delivery, error) {
	var (
		delivery domain.Delivery
		version  = -1
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		d, err := getDelivery(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := fn(&d, now); err != nil {
			return err
		}
		d.UpdatedAt = now
		if err := tx.Deliveries().Update(ctx, d); err != nil {
			return fmt.Errorf("update delivery: %w", err)
		}
		if d.OrderID != nil {
			if version, err = touchOrder(ctx, tx, *d.OrderID, now); err != nil {
				return err
			}
		}
		delivery = d
		return nil
	})
	if err != nil {
		return domain.Delivery{}, err
	}
	if delivery.OrderID != nil {
		invalidateOrder(ctx, s.cache, s.logger, *delivery.OrderID, version)
	}
	return delivery, nil
}

// cancelPendingForOrder cancels deliveries of the order that have not left.
func (s *DeliveryService) cancelPendingForOrder(ctx context.Context, tx port.Tx, orderID, reason string, now time.Time) error {
	deliveries, err := tx.Deliveries().ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}
	for _, d := range deliveries {
		if d.Status != domain.DeliveryStatusPending {
			continue
		}
		d.Status = domain.DeliveryStatusCancelled
		d.TrackingEvents = append(d.TrackingEvents, domain.TrackingEvent{
			Timestamp:   now,
			Status:      domain.DeliveryStatusCancelled,
			Description: "Order cancelled: " + reason,
		})
		d.UpdatedAt = now
		if err := tx.Deliveries().Update(ctx, d); err != nil {
			return fmt.Errorf("cancel delivery %s: %w", d.ID, err)
		}
	}
	return nil
}

func getDelivery(ctx context.Context, tx port.Tx, id string) (domain.Delivery, error) {
	d, err := tx.Deliveries().Get(ctx, id)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	if d == nil {
		return domain.Delivery{}, fmt.Errorf("%w: %s", domain.ErrDeliveryNotFound, id)
	}
	return *d, nil
}

// touchOrder bumps the order version so cached order details are fenced.
// It also proves a referenced order exists.
func touchOrder(ctx context.Context, tx port.Tx, orderID string, now time.Time) (int, error) {
	order, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	order.UpdatedAt = now
	updated, err := tx.Orders().Update(ctx, *order)
	if err != nil {
		return 0, fmt.Errorf("touch order: %w", err)
	}
	return updated.Version, nil
}

func validateAddress(field string, a domain.Address) error {
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.Country) == "" {
		return fmt.Errorf("%w: %s requires line1, city and country", domain.ErrValidation, field)
	}
	return nil
}
