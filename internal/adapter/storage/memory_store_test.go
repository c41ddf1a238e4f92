package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

func seedStock(store *MemoryStore, id string, stock int) {
	store.SeedProduct(domain.Product{
		ID:             id,
		SKU:            "SKU-" + id,
		Type:           domain.ProductTypePhysical,
		InventoryCount: &stock,
		Status:         domain.ProductStatusActive,
	})
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	store := NewMemoryStore()
	seedStock(store, "p-1", 10)

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		require.NoError(t, tx.Products().AdjustInventory(ctx, "p-1", -4))
		require.NoError(t, tx.Sales().Create(ctx, domain.Sale{ID: "s-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, ok := store.Product("p-1")
	require.True(t, ok)
	assert.Equal(t, 10, *p.InventoryCount)

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		sale, err := tx.Sales().Get(ctx, "s-1")
		assert.Nil(t, sale)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryStore_AdjustInventoryNeverNegative(t *testing.T) {
	store := NewMemoryStore()
	seedStock(store, "p-1", 2)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.Products().AdjustInventory(ctx, "p-1", -3)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	p, _ := store.Product("p-1")
	assert.Equal(t, 2, *p.InventoryCount)
}

func TestMemoryStore_OrderVersioning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	order := domain.Order{ID: "o-1", OrderNumber: "ORD-1", CustomerID: "c-1", Version: 1}
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.Orders().Create(ctx, order)
	}))

	err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.Orders().Create(ctx, domain.Order{ID: "o-2", OrderNumber: "ORD-1"})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest, "order numbers are unique")

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		updated, err := tx.Orders().Update(ctx, order)
		assert.Equal(t, 2, updated.Version)
		return err
	}))

	err = store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.Orders().Update(ctx, order)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrOptimisticLock, "stale version is rejected")
}

func TestMemoryStore_ListByCustomerNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		for i, id := range []string{"o-1", "o-2", "o-3"} {
			if err := tx.Orders().Create(ctx, domain.Order{
				ID:          id,
				OrderNumber: "ORD-" + id,
				CustomerID:  "c-1",
				CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			}); err != nil {
				return err
			}
		}
		return tx.Orders().Create(ctx, domain.Order{ID: "o-x", OrderNumber: "ORD-x", CustomerID: "c-2"})
	}))

	var ids []string
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		orders, err := tx.Orders().ListByCustomer(ctx, "c-1")
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		return err
	}))
	assert.Equal(t, []string{"o-3", "o-2", "o-1"}, ids)
}

func TestMemoryStore_DeliveryRequiresOrder(t *testing.T) {
	store := NewMemoryStore()
	missing := "nope"

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.Deliveries().Create(ctx, domain.Delivery{ID: "d-1", OrderID: &missing})
	})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.Deliveries().Create(ctx, domain.Delivery{ID: "d-2"})
	})
	assert.NoError(t, err, "ad hoc deliveries have no order")
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, port.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
