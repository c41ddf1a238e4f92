package port

import (
	"context"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

// Transactor runs fn inside a single database transaction. Any error
// returned by fn rolls back every write made through tx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Products() ProductRepository
	Discounts() DiscountRepository
	Sales() SaleRepository
	Orders() OrderRepository
	Deliveries() DeliveryRepository
	Tickets() TicketRepository
}

type ProductRepository interface {
	// FindByIDs returns the products that exist, locking them for the rest
	// of the transaction. Missing ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// AdjustInventory applies delta to a metered product's stock and fails
	// with ErrInsufficientInventory if the result would be negative.
	AdjustInventory(ctx context.Context, productID string, delta int) error

	Save(ctx context.Context, product domain.Product) error
}

type DiscountRepository interface {
	// FindByCode returns nil when no discount has the code.
	FindByCode(ctx context.Context, code string) (*domain.Discount, error)
	IncrementUsage(ctx context.Context, code string) error
}

type SaleRepository interface {
	Create(ctx context.Context, sale domain.Sale) error
	Get(ctx context.Context, id string) (*domain.Sale, error)
	Update(ctx context.Context, sale domain.Sale) error
}

type OrderRepository interface {
	// Create fails with ErrDuplicateRequest when the order number is taken.
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	// Update persists the order if its version still matches, bumping it.
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
}

type DeliveryRepository interface {
	Create(ctx context.Context, delivery domain.Delivery) error
	Get(ctx context.Context, id string) (*domain.Delivery, error)
	Update(ctx context.Context, delivery domain.Delivery) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Delivery, error)
}

type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []domain.Ticket) error
	ListBySale(ctx context.Context, saleID string) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error
}
