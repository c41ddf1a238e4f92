package domain

// InventoryAdjustment is a signed change to a product's metered stock.
// Negative deltas take stock, positive deltas restore it.
type InventoryAdjustment struct {
	ProductID string
	Delta     int
}

// Adjustments collapses line items into one adjustment per product, keeping
// first-seen order so that row locks are always taken in a stable sequence.
func Adjustments(lines []LineQuantity, sign int) []InventoryAdjustment {
	index := make(map[string]int, len(lines))
	out := make([]InventoryAdjustment, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Delta += sign * l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, InventoryAdjustment{ProductID: l.ProductID, Delta: sign * l.Quantity})
	}
	return out
}

type LineQuantity struct {
	ProductID string
	Quantity  int
}
