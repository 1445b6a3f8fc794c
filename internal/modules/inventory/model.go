package inventory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Variant is the sellable inventory unit: one concrete configuration of a
// catalog product, with its own SKU, pricing, and stock counters.
type Variant struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     uuid.UUID       `json:"product_id"`
	SKU           string          `json:"sku"`
	Attributes    json.RawMessage `json:"attributes,omitempty"` // color, size, material, ...
	SupplierPrice float64         `json:"supplier_price"`
	SellingPrice  float64         `json:"selling_price"`
	AvailableQty  int             `json:"available_qty"`
	ReservedQty   int             `json:"reserved_qty"`
	LastSyncedAt  time.Time       `json:"last_synced_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProfitMargin is the absolute margin per unit. Computed on demand, never stored.
func (v *Variant) ProfitMargin() float64 {
	return v.SellingPrice - v.SupplierPrice
}

// ProfitPercent is the margin relative to the supplier price.
func (v *Variant) ProfitPercent() float64 {
	if v.SupplierPrice == 0 {
		return 0
	}
	return (v.SellingPrice - v.SupplierPrice) / v.SupplierPrice * 100
}

// TotalInStock is the sum of uncommitted and reserved stock.
func (v *Variant) TotalInStock() int {
	return v.AvailableQty + v.ReservedQty
}

// Pricing is what order creation reads at reservation time: the price to lock
// in and the supplier fulfilling the line.
type Pricing struct {
	SellingPrice float64   `json:"selling_price"`
	SupplierID   uuid.UUID `json:"supplier_id"`
}

// CreateVariantRequest holds data for listing a new variant.
type CreateVariantRequest struct {
	ProductID     string          `json:"product_id"`
	SKU           string          `json:"sku"`
	Attributes    json.RawMessage `json:"attributes,omitempty"`
	SupplierPrice float64         `json:"supplier_price"`
	SellingPrice  float64         `json:"selling_price"`
	AvailableQty  int             `json:"available_qty"`
}

// UpdatePriceRequest adjusts variant pricing.
type UpdatePriceRequest struct {
	SupplierPrice float64 `json:"supplier_price"`
	SellingPrice  float64 `json:"selling_price"`
}

// RestockRequest adds supplier stock to a variant.
type RestockRequest struct {
	Qty int `json:"qty"`
}
