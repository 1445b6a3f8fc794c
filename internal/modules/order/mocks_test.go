package order

import (
	"context"
	"errors"
	"sync"

	"github.com/driftcart/dropship-backend/internal/modules/cart"
	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/google/uuid"
)

// mockRepo implements Repository in memory.
type mockRepo struct {
	mu        sync.Mutex
	orders    map[string]*Order
	createErr error
	cancelled []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: map[string]*Order{}}
}

func (m *mockRepo) CreateOrder(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID.String()] = o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.UserID.String() == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id string, status Status, trackingNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.OrderStatus = status
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	return nil
}

func (m *mockRepo) Cancel(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID.String()]
	if !ok {
		return ErrNotFound
	}
	if !stored.OrderStatus.Cancellable() {
		return ErrInvalidStatusTransition
	}
	stored.OrderStatus = StatusCancelled
	m.cancelled = append(m.cancelled, o.ID.String())
	return nil
}

func (m *mockRepo) MarkPaid(_ context.Context, orderID, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.PaymentStatus == PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = PaymentPaid
	pid := uuid.MustParse(paymentID)
	o.PaymentID = &pid
	if o.OrderStatus == StatusCreated || o.OrderStatus == StatusPaymentPending {
		o.OrderStatus = StatusConfirmed
	}
	return true, nil
}

func (m *mockRepo) SetPaymentStatus(_ context.Context, orderID string, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = status
	return nil
}

// mockCarts implements CartSource.
type mockCarts struct {
	cart     *cart.Cart
	getErr   error
	clearErr error
	cleared  bool
}

func (m *mockCarts) Get(_ context.Context, _ string) (*cart.Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.cart, nil
}

func (m *mockCarts) Clear(_ context.Context, _ string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = true
	return nil
}

// ledgerOp records a reserve or release against the mock ledger.
type ledgerOp struct {
	op        string
	variantID string
	qty       int
}

// mockLedger implements InventoryLedger over an in-memory stock table.
type mockLedger struct {
	mu      sync.Mutex
	stock   map[string]int
	pricing map[string]*inventory.Pricing
	ops     []ledgerOp
}

func newMockLedger() *mockLedger {
	return &mockLedger{stock: map[string]int{}, pricing: map[string]*inventory.Pricing{}}
}

func (m *mockLedger) add(id string, qty int, price float64) {
	m.stock[id] = qty
	m.pricing[id] = &inventory.Pricing{SellingPrice: price, SupplierID: uuid.New()}
}

func (m *mockLedger) Reserve(_ context.Context, variantID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	available, ok := m.stock[variantID]
	if !ok {
		return inventory.ErrVariantNotFound
	}
	if available < qty {
		return &inventory.InsufficientStockError{
			VariantID: uuid.MustParse(variantID), Requested: qty, Available: available,
		}
	}
	m.stock[variantID] = available - qty
	m.ops = append(m.ops, ledgerOp{op: "reserve", variantID: variantID, qty: qty})
	return nil
}

func (m *mockLedger) Release(_ context.Context, variantID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[variantID] += qty
	m.ops = append(m.ops, ledgerOp{op: "release", variantID: variantID, qty: qty})
	return nil
}

func (m *mockLedger) Pricing(_ context.Context, variantID string) (*inventory.Pricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pricing[variantID]
	if !ok {
		return nil, inventory.ErrVariantNotFound
	}
	return p, nil
}

func (m *mockLedger) reserves() []ledgerOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledgerOp
	for _, op := range m.ops {
		if op.op == "reserve" {
			out = append(out, op)
		}
	}
	return out
}

func (m *mockLedger) releases() []ledgerOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledgerOp
	for _, op := range m.ops {
		if op.op == "release" {
			out = append(out, op)
		}
	}
	return out
}

var errBoom = errors.New("boom")

func validAddress() ShippingAddress {
	return ShippingAddress{
		FullName:     "Test Customer",
		Phone:        "+8801700000000",
		AddressLine1: "12 Market Road",
		City:         "Dhaka",
		PostalCode:   "1205",
		Country:      "BD",
	}
}

func cartOf(items ...cart.CartItem) *cart.Cart {
	return &cart.Cart{UserID: uuid.NewString(), Items: items}
}

func item(id uuid.UUID, qty int) cart.CartItem {
	return cart.CartItem{VariantID: id, Qty: qty}
}
