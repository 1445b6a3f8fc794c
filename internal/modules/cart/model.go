package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound    = errors.New("cart: item not in cart")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
)

// Cart is the per-user pre-order item list. One cart per user; consumed and
// cleared atomically by order creation.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem is a single (variant, qty) pair.
type CartItem struct {
	VariantID uuid.UUID `json:"variant_id"`
	Qty       int       `json:"qty"`
}

// TotalItems is the summed quantity across all lines. Computed, never stored.
func (c *Cart) TotalItems() int {
	total := 0
	for _, it := range c.Items {
		total += it.Qty
	}
	return total
}

// AddItemRequest adds or merges a cart line.
type AddItemRequest struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

// UpdateItemRequest replaces the quantity of an existing line.
type UpdateItemRequest struct {
	Qty int `json:"qty"`
}
