package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/fulfillment/internal/adapter/storage"
	"github.com/rl1809/fulfillment/internal/core/domain"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockCache struct {
	mu          sync.Mutex
	keys        map[string]bool
	orders      map[string]domain.OrderDetails
	tombstones  map[string]int
	setErr      error
	releases    int
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{
		keys:       make(map[string]bool),
		orders:     make(map[string]domain.OrderDetails),
		tombstones: make(map[string]int),
	}
}

func (m *mockCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockCache) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.releases++
	return nil
}

func (m *mockCache) GetOrderDetails(_ context.Context, orderID string) (*domain.OrderDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *mockCache) SetOrderDetails(_ context.Context, details domain.OrderDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.tombstones[details.Order.ID]; ok && v > details.Order.Version {
		return nil
	}
	m.orders[details.Order.ID] = details
	return nil
}

func (m *mockCache) InvalidateOrder(_ context.Context, orderID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	m.tombstones[orderID] = version
	m.invalidated = append(m.invalidated, orderID)
	return nil
}

func (m *mockCache) cached(orderID string) (domain.OrderDetails, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.orders[orderID]
	return d, ok
}

type fixture struct {
	store       *storage.MemoryStore
	cache       *mockCache
	sales       *SaleService
	orders      *OrderService
	deliveries  *DeliveryService
	tickets     *TicketService
	compensator *Compensator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	cache := newMockCache()
	now := func() time.Time { return fixedNow }

	guard := NewInventoryGuard(nil)
	pricing := NewPricingEngine(FlatTaxResolver{Name: "VAT", Rate: decimal.RequireFromString("0.10")}, nil)
	sales := NewSaleService(SaleServiceDeps{
		Store: store, Cache: cache, Pricing: pricing, Guard: guard, Currency: "USD", Now: now,
	})
	deliveries := NewDeliveryService(DeliveryServiceDeps{Store: store, Cache: cache, Now: now})
	tickets := NewTicketService(TicketServiceDeps{Store: store, Now: now})
	compensator := NewCompensator(CompensatorDeps{
		Store: store, Cache: cache, Guard: guard, Deliveries: deliveries, Tickets: tickets, Now: now,
	})
	orders, err := NewOrderService(OrderServiceDeps{
		Store: store, Cache: cache, Sales: sales, Deliveries: deliveries, Tickets: tickets,
		Compensator: compensator, Now: now,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	return &fixture{
		store:       store,
		cache:       cache,
		sales:       sales,
		orders:      orders,
		deliveries:  deliveries,
		tickets:     tickets,
		compensator: compensator,
	}
}

func (f *fixture) seed(id, name, price string, productType domain.ProductType, stock *int) {
	f.store.SeedProduct(domain.Product{
		ID:             id,
		SKU:            "SKU-" + id,
		Name:           name,
		CategoryID:     "cat-" + string(productType),
		Price:          decimal.RequireFromString(price),
		Currency:       "USD",
		Type:           productType,
		InventoryCount: stock,
		Status:         domain.ProductStatusActive,
	})
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok := f.store.Product(id)
	if !ok || p.InventoryCount == nil {
		t.Fatalf("product %s has no stock", id)
	}
	return *p.InventoryCount
}

func intPtr(n int) *int {
	return &n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testAddress = domain.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", Country: "US"}

func saleCmd(customer string, lines ...SaleLine) ProcessSaleCommand {
	return ProcessSaleCommand{CustomerID: customer, Items: lines, PaymentMethod: "card"}
}

func orderCmd(customer string, lines ...SaleLine) CreateOrderCommand {
	return CreateOrderCommand{CustomerID: customer, Items: lines, ShippingAddress: testAddress, PaymentMethod: "card"}
}
