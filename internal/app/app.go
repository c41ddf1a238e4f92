// Package app assembles the fulfillment services on top of a store and an
// optional cache.
package app

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/adapter/handler"
	"github.com/rl1809/fulfillment/internal/core/service"
	"github.com/rl1809/fulfillment/internal/port"
)

type Options struct {
	Store            port.Transactor
	Cache            port.CacheRepository
	TaxLabel         string
	TaxRate          decimal.Decimal
	Currency         string
	DeliveryEstimate time.Duration
	Logger           *zap.Logger
	Now              func() time.Time
}

// New wires pricing, inventory, sales, deliveries, tickets, the compensator
// and the order orchestrator.
func New(opts Options) (handler.Services, error) {
	if opts.Store == nil {
		return handler.Services{}, errors.New("app: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pricing := service.NewPricingEngine(
		service.FlatTaxResolver{Name: opts.TaxLabel, Rate: opts.TaxRate},
		service.DefaultDiscountPolicy{},
	)
	guard := service.NewInventoryGuard(logger.Named("inventory"))

	sales := service.NewSaleService(service.SaleServiceDeps{
		Store:    opts.Store,
		Cache:    opts.Cache,
		Pricing:  pricing,
		Guard:    guard,
		Currency: opts.Currency,
		Logger:   logger.Named("sales"),
		Now:      opts.Now,
	})
	deliveries := service.NewDeliveryService(service.DeliveryServiceDeps{
		Store:    opts.Store,
		Cache:    opts.Cache,
		Estimate: opts.DeliveryEstimate,
		Logger:   logger.Named("deliveries"),
		Now:      opts.Now,
	})
	tickets := service.NewTicketService(service.TicketServiceDeps{
		Store:  opts.Store,
		Logger: logger.Named("tickets"),
		Now:    opts.Now,
	})
	compensator := service.NewCompensator(service.CompensatorDeps{
		Store:      opts.Store,
		Cache:      opts.Cache,
		Guard:      guard,
		Deliveries: deliveries,
		Tickets:    tickets,
		Logger:     logger.Named("compensator"),
		Now:        opts.Now,
	})
	orders, err := service.NewOrderService(service.OrderServiceDeps{
		Store:       opts.Store,
		Cache:       opts.Cache,
		Sales:       sales,
		Deliveries:  deliveries,
		Tickets:     tickets,
		Compensator: compensator,
		Logger:      logger.Named("orders"),
		Now:         opts.Now,
	})
	if err != nil {
		return handler.Services{}, err
	}

	return handler.Services{
		Sales:       sales,
		Orders:      orders,
		Compensator: compensator,
		Deliveries:  deliveries,
		Tickets:     tickets,
	}, nil
}
