package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypePhysical     ProductType = "physical"
	ProductTypeDigital      ProductType = "digital"
	ProductTypeSubscription ProductType = "subscription"
	ProductTypeEvent        ProductType = "event"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusArchived ProductStatus = "archived"
)

type Product struct {
	ID         string
	SKU        string
	Name       string
	CategoryID string
	Price      decimal.Decimal
	Currency   string
	Type       ProductType
	// InventoryCount is nil for unmetered products.
	InventoryCount *int
	Status         ProductStatus
	Version        int // optimistic locking
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Product) Metered() bool {
	return p.InventoryCount != nil
}

func (p Product) IsEvent() bool {
	return p.Type == ProductTypeEvent
}

// Available reports whether quantity units can be taken from stock.
func (p Product) Available(quantity int) bool {
	if !p.Metered() {
		return true
	}
	return *p.InventoryCount >= quantity
}
