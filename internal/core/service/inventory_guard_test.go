package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

// mockProductRepo records adjustments and can simulate a concurrent writer
// draining stock between Check and Take.
type mockProductRepo struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	adjustments []domain.InventoryAdjustment
	drained     bool
}

func (m *mockProductRepo) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) AdjustInventory(_ context.Context, productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drained && delta < 0 {
		return domain.ErrInsufficientInventory
	}
	m.adjustments = append(m.adjustments, domain.InventoryAdjustment{ProductID: productID, Delta: delta})
	return nil
}

func (m *mockProductRepo) Save(context.Context, domain.Product) error { return nil }

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: map[string]domain.Product{
		"A": {ID: "A", InventoryCount: intPtr(5)},
		"B": {ID: "B", InventoryCount: intPtr(1)},
		"D": {ID: "D"},
	}}
}

func TestInventoryGuard_LoadReportsMissing(t *testing.T) {
	g := NewInventoryGuard(nil)
	_, err := g.Load(context.Background(), newMockProductRepo(), []domain.LineQuantity{{ProductID: "A", Quantity: 1}, {ProductID: "X", Quantity: 1}, {ProductID: "Y", Quantity: 2}})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Contains(t, err.Error(), "X")
	assert.Contains(t, err.Error(), "Y")
}

func TestInventoryGuard_CheckSumsLines(t *testing.T) {
	g := NewInventoryGuard(nil)
	repo := newMockProductRepo()
	lines := []domain.LineQuantity{{ProductID: "A", Quantity: 3}, {ProductID: "D", Quantity: 1000}, {ProductID: "A", Quantity: 2}}

	products, err := g.Load(context.Background(), repo, lines)
	require.NoError(t, err)
	require.NoError(t, g.Check(products, lines))

	lines = append(lines, domain.LineQuantity{ProductID: "A", Quantity: 1})
	assert.ErrorIs(t, g.Check(products, lines), domain.ErrInsufficientInventory)
}

func TestInventoryGuard_TakeSkipsUnmetered(t *testing.T) {
	g := NewInventoryGuard(nil)
	repo := newMockProductRepo()
	lines := []domain.LineQuantity{{ProductID: "A", Quantity: 2}, {ProductID: "D", Quantity: 7}, {ProductID: "B", Quantity: 1}}
	products, err := g.Load(context.Background(), repo, lines)
	require.NoError(t, err)

	require.NoError(t, g.Take(context.Background(), repo, products, lines))
	assert.Equal(t, []domain.InventoryAdjustment{{ProductID: "A", Delta: -2}, {ProductID: "B", Delta: -1}}, repo.adjustments)
}

func TestInventoryGuard_TakeSurfacesWriteTimeShortage(t *testing.T) {
	g := NewInventoryGuard(nil)
	repo := newMockProductRepo()
	lines := []domain.LineQuantity{{ProductID: "A", Quantity: 1}}
	products, err := g.Load(context.Background(), repo, lines)
	require.NoError(t, err)
	require.NoError(t, g.Check(products, lines))

	repo.drained = true
	err = g.Take(context.Background(), repo, products, lines)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
}

func TestInventoryGuard_RestoreIgnoresMissing(t *testing.T) {
	g := NewInventoryGuard(nil)
	repo := newMockProductRepo()

	require.NoError(t, g.Restore(context.Background(), repo, []domain.LineQuantity{{ProductID: "A", Quantity: 2}, {ProductID: "gone", Quantity: 1}, {ProductID: "A", Quantity: 1}}))
	assert.Equal(t, []domain.InventoryAdjustment{{ProductID: "A", Delta: 3}}, repo.adjustments)

	require.NoError(t, g.Restore(context.Background(), repo, nil))
}
