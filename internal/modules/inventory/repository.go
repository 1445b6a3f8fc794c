package inventory

import "context"

// Repository defines variant data access. Reserve is the single hot path: it
// must be an atomic conditional update on one variant row so concurrent
// checkouts on the same variant never over-sell and never block each other
// across unrelated variants.
type Repository interface {
	Create(ctx context.Context, v *Variant) error
	GetByID(ctx context.Context, id string) (*Variant, error)
	ListByProduct(ctx context.Context, productID string) ([]*Variant, error)
	UpdatePrices(ctx context.Context, id string, supplierPrice, sellingPrice float64) error

	// Reserve moves qty from available to reserved only if available >= qty
	// at the instant of the update. Returns *InsufficientStockError otherwise.
	Reserve(ctx context.Context, id string, qty int) error

	// Release is the unconditional inverse of a prior Reserve. reserved_qty
	// is clamped at zero; the caller is responsible for holding a matching
	// reservation.
	Release(ctx context.Context, id string, qty int) error

	// Restock adds supplier stock to available and touches last_synced_at.
	Restock(ctx context.Context, id string, qty int) error

	// Pricing returns the current selling price and fulfilling supplier,
	// read once at reservation time.
	Pricing(ctx context.Context, id string) (*Pricing, error)
}
