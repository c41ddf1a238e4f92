package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// Discount is read-only reference data apart from its usage counter.
type Discount struct {
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	UsageLimit  *int
	UsageCount  int
	ProductIDs  []string
	CategoryIDs []string
	CustomerIDs []string
}

// AppliesTo reports whether the discount is scoped to the given product.
// A discount without product or category scoping applies to every item.
func (d Discount) AppliesTo(productID, categoryID string) bool {
	if len(d.ProductIDs) == 0 && len(d.CategoryIDs) == 0 {
		return true
	}
	if slices.Contains(d.ProductIDs, productID) {
		return true
	}
	return categoryID != "" && slices.Contains(d.CategoryIDs, categoryID)
}

func (d Discount) AllowsCustomer(customerID string) bool {
	return len(d.CustomerIDs) == 0 || slices.Contains(d.CustomerIDs, customerID)
}

const (
	RejectNotFound            = "not_found"
	RejectInactive            = "inactive"
	RejectNotStarted          = "not_started"
	RejectExpired             = "expired"
	RejectUsageExhausted      = "usage_exhausted"
	RejectCustomerNotEligible = "customer_not_eligible"
	RejectNoEligibleItems     = "no_eligible_items"
)

type AppliedDiscount struct {
	Code   string          `json:"code"`
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

type RejectedDiscount struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
