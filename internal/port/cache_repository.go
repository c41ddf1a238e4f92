package port

import (
	"context"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency reserves a key, returns false if it is already taken
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetOrderDetails returns nil on a miss
	GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error)

	// SetOrderDetails stores details unless a newer order version is cached
	SetOrderDetails(ctx context.Context, details domain.OrderDetails) error

	// InvalidateOrder drops cached details and fences out fills older than version
	InvalidateOrder(ctx context.Context, orderID string, version int) error
}
