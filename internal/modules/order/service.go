package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftcart/dropship-backend/internal/events"
	"github.com/driftcart/dropship-backend/internal/modules/cart"
	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSource is the slice of the cart service checkout consumes: the snapshot
// read and the post-commit clear.
type CartSource interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// InventoryLedger is the slice of the inventory service checkout consumes.
type InventoryLedger interface {
	Reserve(ctx context.Context, variantID string, qty int) error
	Release(ctx context.Context, variantID string, qty int) error
	Pricing(ctx context.Context, variantID string) (*inventory.Pricing, error)
}

// Service defines order business logic.
type Service interface {
	// Create converts the caller's cart into an order, reserving inventory
	// for every line. All-or-nothing: a single failed reservation releases
	// everything reserved so far and no order is written.
	Create(ctx context.Context, userID string, req CreateOrderRequest) (*Order, error)

	Get(ctx context.Context, userID, role, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// UpdateStatus advances fulfilment (operator action); forward-only.
	UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Order, error)

	// Cancel releases all reserved stock and flips the order to CANCELLED.
	Cancel(ctx context.Context, userID, role, id string) (*Order, error)

	// Payment-driven transitions, called by the payment reconciler.
	MarkPaymentPending(ctx context.Context, orderID string) error
	MarkPaid(ctx context.Context, orderID, paymentID string) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) error
}

type service struct {
	repo    Repository
	carts   CartSource
	ledger  InventoryLedger
	pub     events.Publisher
	log     *zap.Logger
	svcName string
}

// NewService creates a new order service.
func NewService(repo Repository, carts CartSource, ledger InventoryLedger, pub events.Publisher, log *zap.Logger, svcName string) Service {
	return &service{repo: repo, carts: carts, ledger: ledger, pub: pub, log: log, svcName: svcName}
}

// reservation records one successful hold so it can be compensated if a later
// step fails.
type reservation struct {
	variantID string
	qty       int
}

func (s *service) Create(ctx context.Context, userID string, req CreateOrderRequest) (*Order, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}

	snapshot, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(snapshot.Items) == 0 {
		return nil, ErrEmptyCart
	}

	// Reserve line by line, keeping a compensation list. Any failure releases
	// every hold taken in this attempt before the error is returned, so a
	// failed checkout leaves inventory exactly as it found it.
	var reserved []reservation
	var items []OrderItem
	var total float64

	for _, line := range snapshot.Items {
		vid := line.VariantID.String()

		if err := s.ledger.Reserve(ctx, vid, line.Qty); err != nil {
			s.compensate(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{variantID: vid, qty: line.Qty})

		// Price and supplier are locked at the instant of reservation.
		pricing, err := s.ledger.Pricing(ctx, vid)
		if err != nil {
			s.compensate(ctx, reserved)
			return nil, err
		}

		items = append(items, OrderItem{
			VariantID:       line.VariantID,
			Qty:             line.Qty,
			SupplierID:      pricing.SupplierID,
			PriceAtPurchase: pricing.SellingPrice,
		})
		total += pricing.SellingPrice * float64(line.Qty)
	}

	o := &Order{
		ID:              uuid.New(),
		UserID:          uid,
		Items:           items,
		TotalAmount:     total,
		PaymentStatus:   PaymentPending,
		OrderStatus:     StatusCreated,
		ShippingAddress: req.ShippingAddress,
		Notes:           strings.TrimSpace(req.Notes),
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		s.compensate(ctx, reserved)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		// The order and its reservations are committed; a stale cart is
		// recoverable, a lost order is not.
		s.log.Warn("cart clear failed after order commit",
			zap.String("order_id", o.ID.String()), zap.Error(err))
	}

	s.publishOrderEvent(events.EventOrderCreated, o)
	return o, nil
}

func (s *service) compensate(ctx context.Context, reserved []reservation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.ledger.Release(ctx, r.variantID, r.qty); err != nil {
			s.log.Error("compensating release failed",
				zap.String("variant_id", r.variantID), zap.Int("qty", r.qty), zap.Error(err))
		}
	}
}

func (s *service) Get(ctx context.Context, userID, role, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != string(user.RoleAdmin) && o.UserID.String() != userID {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := Status(strings.ToUpper(req.OrderStatus))
	if next == StatusCancelled {
		// Cancellation has its own path so stock always gets released.
		return nil, fmt.Errorf("%w: use the cancel endpoint", ErrInvalidStatusTransition)
	}
	if !CanTransition(o.OrderStatus, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.OrderStatus, next)
	}

	if err := s.repo.UpdateStatus(ctx, id, next, req.TrackingNumber); err != nil {
		return nil, err
	}
	o.OrderStatus = next
	if req.TrackingNumber != "" {
		o.TrackingNumber = req.TrackingNumber
	}
	return o, nil
}

func (s *service) Cancel(ctx context.Context, userID, role, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != string(user.RoleAdmin) && o.UserID.String() != userID {
		return nil, ErrUnauthorized
	}
	if !o.OrderStatus.Cancellable() {
		return nil, fmt.Errorf("%w: cannot cancel %s order", ErrInvalidStatusTransition, o.OrderStatus)
	}

	if err := s.repo.Cancel(ctx, o); err != nil {
		return nil, err
	}
	o.OrderStatus = StatusCancelled

	s.publishOrderEvent(events.EventOrderCancelled, o)
	return o, nil
}

func (s *service) MarkPaymentPending(ctx context.Context, orderID string) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.OrderStatus == StatusPaymentPending {
		return nil // already there, intent retry
	}
	if !CanTransition(o.OrderStatus, StatusPaymentPending) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.OrderStatus, StatusPaymentPending)
	}
	return s.repo.UpdateStatus(ctx, orderID, StatusPaymentPending, "")
}

func (s *service) MarkPaid(ctx context.Context, orderID, paymentID string) (bool, error) {
	return s.repo.MarkPaid(ctx, orderID, paymentID)
}

func (s *service) SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) error {
	return s.repo.SetPaymentStatus(ctx, orderID, status)
}

func (s *service) publishOrderEvent(eventType string, o *Order) {
	qtys := make([]events.OrderItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		qtys = append(qtys, events.OrderItemQty{VariantID: it.VariantID.String(), Qty: it.Qty})
	}
	ev := events.NewEnvelope(s.svcName, eventType, events.OrderEventPayload{
		OrderID:     o.ID.String(),
		UserID:      o.UserID.String(),
		OrderStatus: string(o.OrderStatus),
		TotalAmount: o.TotalAmount,
		Items:       qtys,
	})
	s.pub.Publish(events.TopicOrders, o.ID.String(), ev)
}

func validateAddress(a ShippingAddress) error {
	if a.FullName == "" || a.Phone == "" || a.AddressLine1 == "" ||
		a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrInvalidAddress
	}
	return nil
}
