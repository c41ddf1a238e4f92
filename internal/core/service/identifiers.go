package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

const (
	orderNumberPrefix    = "ORD-"
	trackingNumberPrefix = "TRK-"
	saleTxnPrefix        = "TXN-"
	refundTxnPrefix      = "RFD-"
)

func newID() string {
	return uuid.NewString()
}

// randomSuffix is not globally deduplicated; collisions within one day are
// caught by the unique order-number constraint.
func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func newOrderNumber(now time.Time) string {
	return orderNumberPrefix + now.Format("20060102") + "-" + randomSuffix()
}

func newTrackingNumber(now time.Time) string {
	return trackingNumberPrefix + now.Format("20060102") + "-" + randomSuffix()
}

func newTransactionID(prefix string) string {
	return prefix + ulid.Make().String()
}

// reserveIdempotency claims key in the cache. The returned release func
// frees the key again and must be called when the guarded call fails.
func reserveIdempotency(ctx context.Context, cache port.CacheRepository, logger *zap.Logger, scope, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if cache == nil || key == "" {
		return func() {}, nil
	}

	cacheKey := fmt.Sprintf("idempotency:%s:%s", scope, key)
	ok, err := cache.SetIdempotency(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrDuplicateRequest
	}

	return func() {
		if err := cache.ReleaseIdempotency(context.WithoutCancel(ctx), cacheKey); err != nil {
			logger.Warn("release idempotency key failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}, nil
}

func invalidateOrder(ctx context.Context, cache port.CacheRepository, logger *zap.Logger, orderID string, version int) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateOrder(ctx, orderID, version); err != nil {
		logger.Warn("order cache invalidation failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
