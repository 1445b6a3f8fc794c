package catalog

import "context"

// Repository defines catalog data access.
type Repository interface {
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplierByID(ctx context.Context, id string) (*Supplier, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]*Supplier, error)

	CreateProduct(ctx context.Context, p *Product) error
	GetProductByID(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error)
	SetProductActive(ctx context.Context, id string, active bool) error
}
