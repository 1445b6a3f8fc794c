package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service defines inventory business logic: variant listing plus the ledger
// primitives order creation depends on.
type Service interface {
	CreateVariant(ctx context.Context, req CreateVariantRequest) (*Variant, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
	ListByProduct(ctx context.Context, productID string) ([]*Variant, error)
	UpdatePrices(ctx context.Context, id string, req UpdatePriceRequest) (*Variant, error)

	// Ledger primitives. Reserve fails with ErrInsufficientStock when the
	// conditional update loses the race; Release undoes a held reservation;
	// Restock is the supplier-sync entry point.
	Reserve(ctx context.Context, variantID string, qty int) error
	Release(ctx context.Context, variantID string, qty int) error
	Restock(ctx context.Context, variantID string, qty int) error

	// Pricing reads the selling price and supplier for a variant; order
	// creation calls it once per line at reservation time.
	Pricing(ctx context.Context, variantID string) (*Pricing, error)
}

type service struct {
	repo Repository
}

// NewService creates a new inventory service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateVariant(ctx context.Context, req CreateVariantRequest) (*Variant, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("invalid product_id: %w", err)
	}
	if req.SKU == "" {
		return nil, fmt.Errorf("sku is required")
	}
	if req.SellingPrice < 0 || req.SupplierPrice < 0 {
		return nil, fmt.Errorf("prices cannot be negative")
	}
	if req.AvailableQty < 0 {
		return nil, fmt.Errorf("available_qty cannot be negative")
	}

	v := &Variant{
		ID:            uuid.New(),
		ProductID:     productID,
		SKU:           strings.ToUpper(strings.TrimSpace(req.SKU)),
		Attributes:    req.Attributes,
		SupplierPrice: req.SupplierPrice,
		SellingPrice:  req.SellingPrice,
		AvailableQty:  req.AvailableQty,
		LastSyncedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *service) GetVariant(ctx context.Context, id string) (*Variant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByProduct(ctx context.Context, productID string) ([]*Variant, error) {
	return s.repo.ListByProduct(ctx, productID)
}

func (s *service) UpdatePrices(ctx context.Context, id string, req UpdatePriceRequest) (*Variant, error) {
	if req.SellingPrice < 0 || req.SupplierPrice < 0 {
		return nil, fmt.Errorf("prices cannot be negative")
	}
	if err := s.repo.UpdatePrices(ctx, id, req.SupplierPrice, req.SellingPrice); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) Reserve(ctx context.Context, variantID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return s.repo.Reserve(ctx, variantID, qty)
}

func (s *service) Release(ctx context.Context, variantID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return s.repo.Release(ctx, variantID, qty)
}

func (s *service) Restock(ctx context.Context, variantID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return s.repo.Restock(ctx, variantID, qty)
}

func (s *service) Pricing(ctx context.Context, variantID string) (*Pricing, error) {
	return s.repo.Pricing(ctx, variantID)
}
