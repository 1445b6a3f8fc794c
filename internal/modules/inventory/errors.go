package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrVariantNotFound   = errors.New("inventory: variant not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be at least 1")
)

// InsufficientStockError reports a failed reservation with the stock level
// observed at the moment the conditional update was rejected.
type InsufficientStockError struct {
	VariantID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Is lets callers match with errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
