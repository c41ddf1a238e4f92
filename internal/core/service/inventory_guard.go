package service

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

// InventoryGuard checks and moves metered stock. It only ever runs inside a
// caller's transaction, on product rows that the transaction has locked.
type InventoryGuard struct {
	logger *zap.Logger
}

func NewInventoryGuard(logger *zap.Logger) *InventoryGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryGuard{logger: logger}
}

// Load resolves and locks every product referenced by lines. It fails with
// ErrProductNotFound when any id is missing.
func (g *InventoryGuard) Load(ctx context.Context, repo port.ProductRepository, lines []domain.LineQuantity) (map[string]domain.Product, error) {
	ids := productIDs(lines)
	products, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	if len(byID) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProductNotFound, missing)
	}
	return byID, nil
}

// Check fails with ErrInsufficientInventory when a metered product holds
// fewer units than requested across all lines for it.
func (g *InventoryGuard) Check(products map[string]domain.Product, lines []domain.LineQuantity) error {
	for _, adj := range domain.Adjustments(lines, 1) {
		p := products[adj.ProductID]
		if !p.Available(adj.Delta) {
			return fmt.Errorf("%w: product %s has %d, requested %d",
				domain.ErrInsufficientInventory, p.ID, *p.InventoryCount, adj.Delta)
		}
	}
	return nil
}

// Take decrements stock for metered products. The repository re-checks
// non-negativity at write time, so a concurrent sale can never oversell.
func (g *InventoryGuard) Take(ctx context.Context, repo port.ProductRepository, products map[string]domain.Product, lines []domain.LineQuantity) error {
	return g.apply(ctx, repo, products, domain.Adjustments(lines, -1))
}

// Restore returns stock for metered products. Unknown or unmetered products
// are skipped.
func (g *InventoryGuard) Restore(ctx context.Context, repo port.ProductRepository, lines []domain.LineQuantity) error {
	if len(lines) == 0 {
		return nil
	}
	products, err := repo.FindByIDs(ctx, productIDs(lines))
	if err != nil {
		return fmt.Errorf("find products: %w", err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return g.apply(ctx, repo, byID, domain.Adjustments(lines, 1))
}

func (g *InventoryGuard) apply(ctx context.Context, repo port.ProductRepository, products map[string]domain.Product, adjustments []domain.InventoryAdjustment) error {
	for _, adj := range adjustments {
		p, ok := products[adj.ProductID]
		if !ok {
			g.logger.Warn("inventory adjustment skipped, product missing", zap.String("product_id", adj.ProductID))
			continue
		}
		if !p.Metered() || adj.Delta == 0 {
			continue
		}
		if err := repo.AdjustInventory(ctx, adj.ProductID, adj.Delta); err != nil {
			return fmt.Errorf("adjust inventory %s: %w", adj.ProductID, err)
		}
	}
	return nil
}

func productIDs(lines []domain.LineQuantity) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if !slices.Contains(ids, l.ProductID) {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}
