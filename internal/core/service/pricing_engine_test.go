package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

func newTestEngine() *PricingEngine {
	return NewPricingEngine(FlatTaxResolver{Name: "VAT", Rate: dec("0.10")}, nil)
}

func item(id, price string, qty int) domain.SaleItem {
	return NewSaleItem(domain.Product{ID: id, Price: dec(price), CategoryID: "cat-" + id}, qty)
}

func TestPrice_TotalsInvariant(t *testing.T) {
	engine := newTestEngine()
	items := []domain.SaleItem{item("p1", "19.99", 3), item("p2", "5.55", 1)}
	candidates := []DiscountCandidate{
		{Code: "TEN", Discount: &domain.Discount{Code: "TEN", Type: domain.DiscountTypePercentage, Value: dec("10"), Active: true}},
	}

	quote := engine.Price(items, candidates, "c-1", fixedNow)

	totals := quote.Totals
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.Tax).Sub(totals.Discount)))
	assert.True(t, totals.Subtotal.Equal(dec("65.52")), "subtotal %s", totals.Subtotal)

	var itemTotal = dec("0")
	for _, it := range quote.Items {
		assert.True(t, it.Total.Equal(it.Subtotal.Add(it.TaxAmount).Sub(it.DiscountAmount)))
		itemTotal = itemTotal.Add(it.Total)
	}
	assert.True(t, itemTotal.Equal(totals.Total))
}

func TestPrice_ScenarioSubtotal(t *testing.T) {
	quote := newTestEngine().Price([]domain.SaleItem{item("p1", "1000", 3)}, nil, "c-1", fixedNow)

	assert.True(t, quote.Totals.Subtotal.Equal(dec("3000")))
	assert.True(t, quote.Totals.Tax.Equal(dec("300")))
	assert.True(t, quote.Totals.Total.Equal(dec("3300")))
	require.Len(t, quote.TaxDetails, 1)
	assert.Equal(t, "VAT", quote.TaxDetails[0].Name)
	assert.True(t, quote.TaxDetails[0].TaxableAmount.Equal(dec("3000")))
}

func TestApplyDiscounts_StackInOrder(t *testing.T) {
	engine := newTestEngine()
	items := []domain.SaleItem{item("p1", "100", 1)}
	candidates := []DiscountCandidate{
		{Code: "PCT", Discount: &domain.Discount{Type: domain.DiscountTypePercentage, Value: dec("20"), Active: true}},
		{Code: "FIVE", Discount: &domain.Discount{Type: domain.DiscountTypeFixedAmount, Value: dec("5"), Active: true}},
	}

	out, applied, rejected := engine.ApplyDiscounts(items, candidates, "c-1", fixedNow)

	assert.Empty(t, rejected)
	require.Len(t, applied, 2)
	assert.Equal(t, "PCT", applied[0].Code)
	assert.True(t, applied[0].Amount.Equal(dec("20")))
	assert.True(t, applied[1].Amount.Equal(dec("5")))
	assert.True(t, out[0].DiscountAmount.Equal(dec("25")))
	assert.True(t, items[0].DiscountAmount.IsZero(), "input items are not mutated")
}

func TestApplyDiscounts_CappedAtSubtotal(t *testing.T) {
	engine := newTestEngine()
	items := []domain.SaleItem{item("p1", "3", 1)}
	candidates := []DiscountCandidate{
		{Code: "BIG", Discount: &domain.Discount{Type: domain.DiscountTypeFixedAmount, Value: dec("10"), Active: true}},
	}

	out, applied, _ := engine.ApplyDiscounts(items, candidates, "c-1", fixedNow)

	require.Len(t, applied, 1)
	assert.True(t, applied[0].Amount.Equal(dec("3")))
	assert.True(t, out[0].Total.IsZero())
}

func TestApplyDiscounts_ScopedToEligibleItems(t *testing.T) {
	engine := newTestEngine()
	items := []domain.SaleItem{item("p1", "50", 1), item("p2", "50", 1)}
	candidates := []DiscountCandidate{
		{Code: "P2", Discount: &domain.Discount{Type: domain.DiscountTypePercentage, Value: dec("50"), Active: true, ProductIDs: []string{"p2"}}},
		{Code: "CAT", Discount: &domain.Discount{Type: domain.DiscountTypeFixedAmount, Value: dec("1"), Active: true, CategoryIDs: []string{"cat-p1"}}},
	}

	out, applied, _ := engine.ApplyDiscounts(items, candidates, "c-1", fixedNow)

	require.Len(t, applied, 2)
	assert.True(t, out[0].DiscountAmount.Equal(dec("1")))
	assert.True(t, out[1].DiscountAmount.Equal(dec("25")))
}

func TestApplyDiscounts_Rejections(t *testing.T) {
	past := fixedNow.Add(-48 * time.Hour)
	future := fixedNow.Add(48 * time.Hour)

	tests := []struct {
		name     string
		discount *domain.Discount
		want     string
	}{
		{name: "unknown code", discount: nil, want: domain.RejectNotFound},
		{name: "inactive", discount: &domain.Discount{Active: false}, want: domain.RejectInactive},
		{name: "not started", discount: &domain.Discount{Active: true, StartsAt: &future}, want: domain.RejectNotStarted},
		{name: "expired", discount: &domain.Discount{Active: true, EndsAt: &past}, want: domain.RejectExpired},
		{name: "usage exhausted", discount: &domain.Discount{Active: true, UsageLimit: intPtr(5), UsageCount: 5}, want: domain.RejectUsageExhausted},
		{name: "other customer", discount: &domain.Discount{Active: true, CustomerIDs: []string{"c-2"}}, want: domain.RejectCustomerNotEligible},
		{name: "no eligible items", discount: &domain.Discount{Active: true, ProductIDs: []string{"zzz"}}, want: domain.RejectNoEligibleItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.discount != nil {
				tt.discount.Type = domain.DiscountTypePercentage
				tt.discount.Value = dec("10")
			}
			out, applied, rejected := newTestEngine().ApplyDiscounts(
				[]domain.SaleItem{item("p1", "10", 1)},
				[]DiscountCandidate{{Code: "X", Discount: tt.discount}},
				"c-1", fixedNow,
			)
			assert.Empty(t, applied)
			require.Len(t, rejected, 1)
			assert.Equal(t, tt.want, rejected[0].Reason)
			assert.True(t, out[0].DiscountAmount.IsZero())
		})
	}
}

type categoryTax struct{}

func (categoryTax) Resolve(it domain.SaleItem) TaxRule {
	if it.CategoryID == "cat-food" {
		return TaxRule{Name: "reduced", Rate: dec("0.05")}
	}
	return TaxRule{Name: "standard", Rate: dec("0.20")}
}

func TestCalculateTax_AggregatesPerRule(t *testing.T) {
	engine := NewPricingEngine(categoryTax{}, nil)
	items := []domain.SaleItem{
		item("food", "10", 2),
		item("tool", "50", 1),
		item("food", "1", 1),
	}

	out, details := engine.CalculateTax(items)

	require.Len(t, details, 2)
	assert.Equal(t, "reduced", details[0].Name)
	assert.True(t, details[0].TaxableAmount.Equal(dec("21")))
	assert.True(t, details[0].Amount.Equal(dec("1.05")))
	assert.Equal(t, "standard", details[1].Name)
	assert.True(t, details[1].Amount.Equal(dec("10")))
	assert.True(t, out[1].Total.Equal(dec("60")))
}

func TestNewSaleItem_UsesCatalogPrice(t *testing.T) {
	it := NewSaleItem(domain.Product{ID: "p1", SKU: "S1", Name: "Thing", Price: dec("2.50")}, 4)

	assert.True(t, it.UnitPrice.Equal(dec("2.50")))
	assert.True(t, it.Subtotal.Equal(dec("10")))
	assert.True(t, it.Total.Equal(dec("10")))
	assert.Equal(t, "S1", it.SKU)
}
