package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("catalog: not found")

// Service defines catalog business logic.
type Service interface {
	CreateSupplier(ctx context.Context, req CreateSupplierRequest) (*Supplier, error)
	GetSupplier(ctx context.Context, id string) (*Supplier, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]*Supplier, error)

	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error)
	SetProductActive(ctx context.Context, id string, active bool) error
}

type service struct{ repo Repository }

func NewService(repo Repository) Service { return &service{repo: repo} }

func (s *service) CreateSupplier(ctx context.Context, req CreateSupplierRequest) (*Supplier, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("supplier name is required")
	}
	t := SupplierType(strings.ToUpper(req.Type))
	if t != SupplierLocal && t != SupplierInternational {
		return nil, fmt.Errorf("supplier type must be LOCAL or INTERNATIONAL")
	}
	if req.ContactEmail == "" {
		return nil, fmt.Errorf("contact_email is required")
	}

	sup := &Supplier{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Type:         t,
		APIEndpoint:  req.APIEndpoint,
		APIKey:       req.APIKey,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		IsActive:     true,
	}
	if err := s.repo.CreateSupplier(ctx, sup); err != nil {
		return nil, err
	}
	return sup, nil
}

func (s *service) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	return s.repo.GetSupplierByID(ctx, id)
}

func (s *service) ListSuppliers(ctx context.Context, activeOnly bool) ([]*Supplier, error) {
	return s.repo.ListSuppliers(ctx, activeOnly)
}

func (s *service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if len(req.Title) < 3 {
		return nil, fmt.Errorf("title must be at least 3 characters")
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier_id: %w", err)
	}
	if _, err := s.repo.GetSupplierByID(ctx, supplierID.String()); err != nil {
		return nil, fmt.Errorf("supplier not found: %w", err)
	}

	p := &Product{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		SupplierID:  supplierID,
		Category:    req.Category,
		Images:      req.Images,
		IsActive:    true,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *service) ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	return s.repo.ListProducts(ctx, category, activeOnly)
}

func (s *service) SetProductActive(ctx context.Context, id string, active bool) error {
	return s.repo.SetProductActive(ctx, id, active)
}
