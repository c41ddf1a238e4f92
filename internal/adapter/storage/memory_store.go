package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

// MemoryStore is an in-process implementation of port.Transactor. A single
// lock serialises transactions; each one works on a copy of the data that
// replaces the committed state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	products   map[string]domain.Product
	discounts  map[string]domain.Discount
	sales      map[string]domain.Sale
	orders     map[string]domain.Order
	deliveries map[string]domain.Delivery
	tickets    map[string]domain.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		products:   make(map[string]domain.Product),
		discounts:  make(map[string]domain.Discount),
		sales:      make(map[string]domain.Sale),
		orders:     make(map[string]domain.Order),
		deliveries: make(map[string]domain.Delivery),
		tickets:    make(map[string]domain.Ticket),
	}}
}

// Map values are copied on every read and write, so a shallow map clone
// is enough to isolate a transaction from committed state.
func (s memoryState) clone() memoryState {
	return memoryState{
		products:   maps.Clone(s.products),
		discounts:  maps.Clone(s.discounts),
		sales:      maps.Clone(s.sales),
		orders:     maps.Clone(s.orders),
		deliveries: maps.Clone(s.deliveries),
		tickets:    maps.Clone(s.tickets),
	}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(ctx, &memoryTx{state: &work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// SeedProduct and SeedDiscount load catalog reference data outside of any
// business transaction.
func (m *MemoryStore) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = cloneProduct(p)
}

func (m *MemoryStore) SeedDiscount(d domain.Discount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.discounts[d.Code] = d
}

// Product returns the committed copy of a product.
func (m *MemoryStore) Product(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	return cloneProduct(p), ok
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Products() port.ProductRepository { return memoryProducts{t.state} }
func (t *memoryTx) Discounts() port.DiscountRepository { return memoryDiscounts{t.state} }
func (t *memoryTx) Sales() port.SaleRepository { return memorySales{t.state} }
func (t *memoryTx) Orders() port.OrderRepository { return memoryOrders{t.state} }
func (t *memoryTx) Deliveries() port.DeliveryRepository { return memoryDeliveries{t.state} }
func (t *memoryTx) Tickets() port.TicketRepository { return memoryTickets{t.state} }

type memoryProducts struct{ s *memoryState }

func (r memoryProducts) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r memoryProducts) AdjustInventory(_ context.Context, productID string, delta int) error {
	p, ok := r.s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if p.InventoryCount == nil {
		return nil
	}
	next := *p.InventoryCount + delta
	if next < 0 {
		return fmt.Errorf("%w: product %s", domain.ErrInsufficientInventory, productID)
	}
	p.InventoryCount = &next
	p.Version++
	r.s.products[productID] = p
	return nil
}

func (r memoryProducts) Save(_ context.Context, p domain.Product) error {
	r.s.products[p.ID] = cloneProduct(p)
	return nil
}

type memoryDiscounts struct{ s *memoryState }

func (r memoryDiscounts) FindByCode(_ context.Context, code string) (*domain.Discount, error) {
	d, ok := r.s.discounts[code]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r memoryDiscounts) IncrementUsage(_ context.Context, code string) error {
	d, ok := r.s.discounts[code]
	if !ok {
		return nil
	}
	d.UsageCount++
	r.s.discounts[code] = d
	return nil
}

type memorySales struct{ s *memoryState }

func (r memorySales) Create(_ context.Context, sale domain.Sale) error {
	if _, exists := r.s.sales[sale.ID]; exists {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}
	r.s.sales[sale.ID] = sale.Clone()
	return nil
}

func (r memorySales) Get(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := r.s.sales[id]
	if !ok {
		return nil, nil
	}
	c := sale.Clone()
	return &c, nil
}

func (r memorySales) Update(_ context.Context, sale domain.Sale) error {
	if _, ok := r.s.sales[sale.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSaleNotFound, sale.ID)
	}
	r.s.sales[sale.ID] = sale.Clone()
	return nil
}

type memoryOrders struct{ s *memoryState }

func (r memoryOrders) Create(_ context.Context, order domain.Order) error {
	for _, o := range r.s.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("%w: order number %s", domain.ErrDuplicateRequest, order.OrderNumber)
		}
	}
	r.s.orders[order.ID] = order.Clone()
	return nil
}

func (r memoryOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	c := o.Clone()
	return &c, nil
}

func (r memoryOrders) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	current, ok := r.s.orders[order.ID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	if current.Version != order.Version {
		return domain.Order{}, fmt.Errorf("%w: order %s at version %d, got %d",
			domain.ErrOptimisticLock, order.ID, current.Version, order.Version)
	}
	order.Version++
	r.s.orders[order.ID] = order.Clone()
	return order.Clone(), nil
}

func (r memoryOrders) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.s.orders {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memoryDeliveries struct{ s *memoryState }

func (r memoryDeliveries) Create(_ context.Context, d domain.Delivery) error {
	if d.OrderID != nil {
		if _, ok := r.s.orders[*d.OrderID]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, *d.OrderID)
		}
	}
	r.s.deliveries[d.ID] = d.Clone()
	return nil
}

func (r memoryDeliveries) Get(_ context.Context, id string) (*domain.Delivery, error) {
	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (r memoryDeliveries) Update(_ context.Context, d domain.Delivery) error {
	if _, ok := r.s.deliveries[d.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrDeliveryNotFound, d.ID)
	}
	r.s.deliveries[d.ID] = d.Clone()
	return nil
}

func (r memoryDeliveries) ListByOrder(_ context.Context, orderID string) ([]domain.Delivery, error) {
	var out []domain.Delivery
	for _, d := range r.s.deliveries {
		if d.OrderID != nil && *d.OrderID == orderID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memoryTickets struct{ s *memoryState }

func (r memoryTickets) CreateBatch(_ context.Context, tickets []domain.Ticket) error {
	for _, t := range tickets {
		r.s.tickets[t.ID] = t
	}
	return nil
}

func (r memoryTickets) ListBySale(_ context.Context, saleID string) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.SaleID != nil && *t.SaleID == saleID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Ticket) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (r memoryTickets) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) error {
	t, ok := r.s.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s not found", id)
	}
	t.Status = status
	r.s.tickets[id] = t
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	if p.InventoryCount != nil {
		n := *p.InventoryCount
		p.InventoryCount = &n
	}
	return p
}
