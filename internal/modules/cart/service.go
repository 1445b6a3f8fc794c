package cart

import (
	"context"
	"fmt"

	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/google/uuid"
)

// VariantGetter is the slice of the inventory service the cart needs: a stock
// and existence check when items are added.
type VariantGetter interface {
	GetVariant(ctx context.Context, id string) (*inventory.Variant, error)
}

// Service defines cart business logic. Order creation consumes Get and Clear;
// the rest back the storefront cart endpoints.
type Service interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, req AddItemRequest) (*Cart, error)
	UpdateItem(ctx context.Context, userID, variantID string, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, variantID string) (*Cart, error)
	Clear(ctx context.Context, userID string) error
}

type service struct {
	repo     Repository
	variants VariantGetter
}

// NewService creates a new cart service.
func NewService(repo Repository, variants VariantGetter) Service {
	return &service{repo: repo, variants: variants}
}

func (s *service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) AddItem(ctx context.Context, userID string, req AddItemRequest) (*Cart, error) {
	if req.Qty < 1 {
		return nil, ErrInvalidQuantity
	}
	variantID, err := uuid.Parse(req.VariantID)
	if err != nil {
		return nil, fmt.Errorf("invalid variant_id: %w", err)
	}

	// Advisory check only: the real stock guarantee is the reservation at
	// checkout. This just keeps obviously unavailable items out of carts.
	v, err := s.variants.GetVariant(ctx, variantID.String())
	if err != nil {
		return nil, err
	}
	if v.AvailableQty < req.Qty {
		return nil, &inventory.InsufficientStockError{
			VariantID: variantID, Requested: req.Qty, Available: v.AvailableQty,
		}
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items[i].Qty += req.Qty
			merged = true
			break
		}
	}
	if !merged {
		c.Items = append(c.Items, CartItem{VariantID: variantID, Qty: req.Qty})
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) UpdateItem(ctx context.Context, userID, variantID string, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	vid, err := uuid.Parse(variantID)
	if err != nil {
		return nil, fmt.Errorf("invalid variant_id: %w", err)
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range c.Items {
		if c.Items[i].VariantID == vid {
			c.Items[i].Qty = qty
			if err := s.repo.Save(ctx, c); err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return nil, ErrItemNotFound
}

func (s *service) RemoveItem(ctx context.Context, userID, variantID string) (*Cart, error) {
	vid, err := uuid.Parse(variantID)
	if err != nil {
		return nil, fmt.Errorf("invalid variant_id: %w", err)
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := c.Items[:0]
	found := false
	for _, it := range c.Items {
		if it.VariantID == vid {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return nil, ErrItemNotFound
	}
	c.Items = kept

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}
