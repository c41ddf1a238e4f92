package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

const (
	orderKeyPrefix           = "order:"
	defaultIdempotencyKeyTTL = 24 * time.Hour
	defaultOrderCacheTTL     = 10 * time.Minute
)

// A cached order is a hash of {version, payload}. The script refuses to
// overwrite an entry with a newer version, so a slow reader cannot put back
// details that a writer has already fenced out. An empty payload is a
// tombstone; a fill at the tombstone's version replaces it.
var setOrderDetailsScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])
local payload = ARGV[2]
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
	return 0
end

redis.call('HSET', key, 'version', version, 'payload', payload)
redis.call('PEXPIRE', key, ttl)
return 1
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	orderTTL       time.Duration
}

type RedisOption func(*RedisAdapter)

func WithIdempotencyTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if ttl > 0 {
			r.idempotencyTTL = ttl
		}
	}
}

func WithOrderCacheTTL(ttl time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		if ttl > 0 {
			r.orderTTL = ttl
		}
	}
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:         client,
		idempotencyTTL: defaultIdempotencyKeyTTL,
		orderTTL:       defaultOrderCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetOrderDetails(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	payload, err := r.client.HGet(ctx, orderKeyPrefix+orderID, "payload").Result()
	if errors.Is(err, redis.Nil) || (err == nil && payload == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var details domain.OrderDetails
	if err := json.Unmarshal([]byte(payload), &details); err != nil {
		return nil, fmt.Errorf("decode cached order: %w", err)
	}
	return &details, nil
}

func (r *RedisAdapter) SetOrderDetails(ctx context.Context, details domain.OrderDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	return r.setOrder(ctx, details.Order.ID, details.Order.Version, string(payload))
}

func (r *RedisAdapter) InvalidateOrder(ctx context.Context, orderID string, version int) error {
	if version < 0 {
		return r.client.Del(ctx, orderKeyPrefix+orderID).Err()
	}
	return r.setOrder(ctx, orderID, version, "")
}

func (r *RedisAdapter) setOrder(ctx context.Context, orderID string, version int, payload string) error {
	key := orderKeyPrefix + orderID
	return setOrderDetailsScript.Run(ctx, r.client, []string{key}, version, payload, r.orderTTL.Milliseconds()).Err()
}
