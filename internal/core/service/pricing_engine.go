package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

const moneyScale = 2

var hundred = decimal.NewFromInt(100)

type TaxRule struct {
	Name string
	Rate decimal.Decimal // fraction, 0.10 is ten percent
}

// TaxRuleResolver picks the tax rule for one line item. Location or
// category specific rates only need a different resolver.
type TaxRuleResolver interface {
	Resolve(item domain.SaleItem) TaxRule
}

// FlatTaxResolver applies one configured rate to every item.
type FlatTaxResolver struct {
	Name string
	Rate decimal.Decimal
}

func (r FlatTaxResolver) Resolve(domain.SaleItem) TaxRule {
	return TaxRule{Name: r.Name, Rate: r.Rate}
}

// DiscountPolicy decides whether a resolved discount may be used. It returns
// a rejection reason, or "" when the discount is valid.
type DiscountPolicy interface {
	Validate(d domain.Discount, customerID string, now time.Time) string
}

type DefaultDiscountPolicy struct{}

func (DefaultDiscountPolicy) Validate(d domain.Discount, customerID string, now time.Time) string {
	switch {
	case !d.Active:
		return domain.RejectInactive
	case d.StartsAt != nil && now.Before(*d.StartsAt):
		return domain.RejectNotStarted
	case d.EndsAt != nil && now.After(*d.EndsAt):
		return domain.RejectExpired
	case d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit:
		return domain.RejectUsageExhausted
	case !d.AllowsCustomer(customerID):
		return domain.RejectCustomerNotEligible
	}
	return ""
}

// DiscountCandidate is a requested code and its definition, nil when the
// lookup found nothing.
type DiscountCandidate struct {
	Code     string
	Discount *domain.Discount
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

type Quote struct {
	Items      []domain.SaleItem
	Applied    []domain.AppliedDiscount
	Rejected   []domain.RejectedDiscount
	TaxDetails []domain.TaxDetail
	Totals     Totals
}

// PricingEngine is side-effect free: every method returns new slices and
// leaves its inputs untouched.
type PricingEngine struct {
	tax    TaxRuleResolver
	policy DiscountPolicy
}

func NewPricingEngine(tax TaxRuleResolver, policy DiscountPolicy) *PricingEngine {
	if tax == nil {
		tax = FlatTaxResolver{Name: "tax", Rate: decimal.Zero}
	}
	if policy == nil {
		policy = DefaultDiscountPolicy{}
	}
	return &PricingEngine{tax: tax, policy: policy}
}

// Price runs discounts then tax over items and aggregates the totals.
func (e *PricingEngine) Price(items []domain.SaleItem, candidates []DiscountCandidate, customerID string, now time.Time) Quote {
	discounted, applied, rejected := e.ApplyDiscounts(items, candidates, customerID, now)
	taxed, details := e.CalculateTax(discounted)
	return Quote{
		Items:      taxed,
		Applied:    applied,
		Rejected:   rejected,
		TaxDetails: details,
		Totals:     Summarize(taxed, details),
	}
}

// ApplyDiscounts walks candidates in the order given. Invalid or unknown
// codes are reported as rejected and skipped; valid codes stack.
func (e *PricingEngine) ApplyDiscounts(items []domain.SaleItem, candidates []DiscountCandidate, customerID string, now time.Time) ([]domain.SaleItem, []domain.AppliedDiscount, []domain.RejectedDiscount) {
	out := cloneItems(items)
	applied := make([]domain.AppliedDiscount, 0, len(candidates))
	var rejected []domain.RejectedDiscount

	for _, c := range candidates {
		if c.Discount == nil {
			rejected = append(rejected, domain.RejectedDiscount{Code: c.Code, Reason: domain.RejectNotFound})
			continue
		}
		d := *c.Discount
		if reason := e.policy.Validate(d, customerID, now); reason != "" {
			rejected = append(rejected, domain.RejectedDiscount{Code: c.Code, Reason: reason})
			continue
		}

		eligible := false
		amount := decimal.Zero
		for i := range out {
			if !d.AppliesTo(out[i].ProductID, out[i].CategoryID) {
				continue
			}
			eligible = true
			itemAmount := discountFor(d, out[i].Subtotal)
			remaining := out[i].Subtotal.Sub(out[i].DiscountAmount)
			if itemAmount.GreaterThan(remaining) {
				itemAmount = remaining
			}
			out[i].DiscountAmount = out[i].DiscountAmount.Add(itemAmount)
			amount = amount.Add(itemAmount)
		}
		if !eligible {
			rejected = append(rejected, domain.RejectedDiscount{Code: c.Code, Reason: domain.RejectNoEligibleItems})
			continue
		}
		applied = append(applied, domain.AppliedDiscount{Code: c.Code, Type: d.Type, Value: d.Value, Amount: amount})
	}

	for i := range out {
		out[i].Total = lineTotal(out[i])
	}
	return out, applied, rejected
}

func discountFor(d domain.Discount, subtotal decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case domain.DiscountTypePercentage:
		return subtotal.Mul(d.Value).Div(hundred).Round(moneyScale)
	case domain.DiscountTypeFixedAmount:
		return d.Value.Round(moneyScale)
	}
	return decimal.Zero
}

// CalculateTax sets each item's tax from its resolved rule and returns one
// tax detail per distinct rule, in first-seen order.
func (e *PricingEngine) CalculateTax(items []domain.SaleItem) ([]domain.SaleItem, []domain.TaxDetail) {
	out := cloneItems(items)
	var details []domain.TaxDetail
	index := make(map[string]int)

	for i := range out {
		rule := e.tax.Resolve(out[i])
		tax := out[i].Subtotal.Mul(rule.Rate).Round(moneyScale)
		out[i].TaxAmount = tax
		out[i].Total = lineTotal(out[i])

		j, ok := index[rule.Name]
		if !ok {
			j = len(details)
			index[rule.Name] = j
			details = append(details, domain.TaxDetail{Name: rule.Name, Rate: rule.Rate, TaxableAmount: decimal.Zero, Amount: decimal.Zero})
		}
		details[j].TaxableAmount = details[j].TaxableAmount.Add(out[i].Subtotal)
		details[j].Amount = details[j].Amount.Add(tax)
	}
	return out, details
}

// Summarize aggregates item and tax-detail amounts into sale totals.
func Summarize(items []domain.SaleItem, taxDetails []domain.TaxDetail) Totals {
	t := Totals{Subtotal: decimal.Zero, Tax: decimal.Zero, Discount: decimal.Zero}
	for _, it := range items {
		t.Subtotal = t.Subtotal.Add(it.Subtotal)
		t.Discount = t.Discount.Add(it.DiscountAmount)
	}
	for _, d := range taxDetails {
		t.Tax = t.Tax.Add(d.Amount)
	}
	t.Total = t.Subtotal.Add(t.Tax).Sub(t.Discount)
	return t
}

// NewSaleItem prices a line from the catalog price; client prices are never used.
func NewSaleItem(p domain.Product, quantity int) domain.SaleItem {
	subtotal := p.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(moneyScale)
	item := domain.SaleItem{
		ProductID:      p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		CategoryID:     p.CategoryID,
		Quantity:       quantity,
		UnitPrice:      p.Price,
		Subtotal:       subtotal,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
	}
	item.Total = lineTotal(item)
	return item
}

func lineTotal(it domain.SaleItem) decimal.Decimal {
	return it.Subtotal.Add(it.TaxAmount).Sub(it.DiscountAmount)
}

func cloneItems(items []domain.SaleItem) []domain.SaleItem {
	out := make([]domain.SaleItem, len(items))
	copy(out, items)
	return out
}
