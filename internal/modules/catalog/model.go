package catalog

import (
	"time"

	"github.com/google/uuid"
)

// SupplierType distinguishes domestic from international suppliers.
type SupplierType string

const (
	SupplierLocal         SupplierType = "LOCAL"
	SupplierInternational SupplierType = "INTERNATIONAL"
)

// Supplier is an upstream dropshipping source for products.
type Supplier struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Type         SupplierType `json:"type"`
	APIEndpoint  string       `json:"api_endpoint,omitempty"`
	APIKey       string       `json:"-"`
	ContactEmail string       `json:"contact_email"`
	ContactPhone string       `json:"contact_phone,omitempty"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Product is a catalog entry; its sellable configurations live in the
// inventory module as variants.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SupplierID  uuid.UUID `json:"supplier_id"`
	Category    string    `json:"category,omitempty"`
	Images      []string  `json:"images,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateSupplierRequest holds data for registering a supplier.
type CreateSupplierRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	APIEndpoint  string `json:"api_endpoint"`
	APIKey       string `json:"api_key"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// CreateProductRequest holds data for adding a catalog product.
type CreateProductRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SupplierID  string   `json:"supplier_id"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
}
