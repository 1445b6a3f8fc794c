package order

import (
	"context"
	"errors"
	"testing"

	"github.com/driftcart/dropship-backend/internal/events"
	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(repo *mockRepo, carts *mockCarts, ledger *mockLedger) Service {
	return NewService(repo, carts, ledger, events.NopPublisher{}, zap.NewNop(), "test")
}

func TestCreateOrderLocksPricesFromLedger(t *testing.T) {
	userID := uuid.NewString()
	v1, v2 := uuid.New(), uuid.New()

	ledger := newMockLedger()
	ledger.add(v1.String(), 10, 25.50)
	ledger.add(v2.String(), 5, 10.00)

	repo := newMockRepo()
	carts := &mockCarts{cart: cartOf(item(v1, 2), item(v2, 1))}

	svc := newTestService(repo, carts, ledger)
	o, err := svc.Create(context.Background(), userID, CreateOrderRequest{ShippingAddress: validAddress()})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, o.OrderStatus)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.InDelta(t, 61.00, o.TotalAmount, 0.001)
	require.Len(t, o.Items, 2)
	assert.InDelta(t, 25.50, o.Items[0].PriceAtPurchase, 0.001)
	assert.Equal(t, 2, o.Items[0].Qty)

	// Stock moved and the cart is gone.
	assert.Equal(t, 8, ledger.stock[v1.String()])
	assert.Equal(t, 4, ledger.stock[v2.String()])
	assert.True(t, carts.cleared)

	stored, err := repo.GetByID(context.Background(), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, stored.TotalAmount)
}

func TestCreateOrderReleasesEverythingWhenOneLineFails(t *testing.T) {
	userID := uuid.NewString()
	v1, v2, v3 := uuid.New(), uuid.New(), uuid.New()

	ledger := newMockLedger()
	ledger.add(v1.String(), 10, 5.00)
	ledger.add(v2.String(), 1, 5.00) // not enough for qty 3
	ledger.add(v3.String(), 10, 5.00)

	repo := newMockRepo()
	carts := &mockCarts{cart: cartOf(item(v1, 2), item(v2, 3), item(v3, 1))}

	svc := newTestService(repo, carts, ledger)
	_, err := svc.Create(context.Background(), userID, CreateOrderRequest{ShippingAddress: validAddress()})
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, v2, stockErr.VariantID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// The one successful reservation was compensated and nothing persisted.
	assert.Equal(t, 10, ledger.stock[v1.String()])
	assert.Equal(t, 1, ledger.stock[v2.String()])
	assert.Len(t, ledger.reserves(), 1)
	assert.Len(t, ledger.releases(), 1)
	assert.Empty(t, repo.orders)
	assert.False(t, carts.cleared)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockCarts{cart: cartOf()}, newMockLedger())

	_, err := svc.Create(context.Background(), uuid.NewString(), CreateOrderRequest{ShippingAddress: validAddress()})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrderInvalidAddress(t *testing.T) {
	v := uuid.New()
	ledger := newMockLedger()
	ledger.add(v.String(), 5, 1.00)
	svc := newTestService(newMockRepo(), &mockCarts{cart: cartOf(item(v, 1))}, ledger)

	addr := validAddress()
	addr.City = ""
	_, err := svc.Create(context.Background(), uuid.NewString(), CreateOrderRequest{ShippingAddress: addr})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Empty(t, ledger.reserves())
}

func TestCreateOrderPersistFailureCompensates(t *testing.T) {
	v := uuid.New()
	ledger := newMockLedger()
	ledger.add(v.String(), 5, 9.99)

	repo := newMockRepo()
	repo.createErr = errBoom
	carts := &mockCarts{cart: cartOf(item(v, 2))}

	svc := newTestService(repo, carts, ledger)
	_, err := svc.Create(context.Background(), uuid.NewString(), CreateOrderRequest{ShippingAddress: validAddress()})
	require.Error(t, err)

	assert.Equal(t, 5, ledger.stock[v.String()])
	assert.False(t, carts.cleared)
}

func TestCreateOrderSurvivesCartClearFailure(t *testing.T) {
	v := uuid.New()
	ledger := newMockLedger()
	ledger.add(v.String(), 5, 9.99)

	repo := newMockRepo()
	carts := &mockCarts{cart: cartOf(item(v, 1)), clearErr: errBoom}

	svc := newTestService(repo, carts, ledger)
	o, err := svc.Create(context.Background(), uuid.NewString(), CreateOrderRequest{ShippingAddress: validAddress()})
	require.NoError(t, err)

	// The order stands even though the cart could not be cleared.
	_, err = repo.GetByID(context.Background(), o.ID.String())
	assert.NoError(t, err)
}

func seedOrder(repo *mockRepo, status Status) *Order {
	o := &Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		OrderStatus:   status,
		PaymentStatus: PaymentPending,
		Items:         []OrderItem{{VariantID: uuid.New(), Qty: 1, SupplierID: uuid.New(), PriceAtPurchase: 10}},
		TotalAmount:   10,
	}
	repo.orders[o.ID.String()] = o
	return o
}

func TestGetEnforcesOwnership(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusCreated)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	_, err := svc.Get(context.Background(), uuid.NewString(), string(user.RoleCustomer), o.ID.String())
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := svc.Get(context.Background(), o.UserID.String(), string(user.RoleCustomer), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	// Admins see everything.
	_, err = svc.Get(context.Background(), uuid.NewString(), string(user.RoleAdmin), o.ID.String())
	assert.NoError(t, err)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusShipped)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	_, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{OrderStatus: "PROCESSING"})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	got, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{OrderStatus: "DELIVERED"})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.OrderStatus)

	// Terminal: nothing moves out of DELIVERED.
	_, err = svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{OrderStatus: "SHIPPED"})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestUpdateStatusRejectsCancellation(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusConfirmed)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	_, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{OrderStatus: "CANCELLED"})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestUpdateStatusAttachesTracking(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusProcessing)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	got, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{
		OrderStatus:    "SHIPPED",
		TrackingNumber: "TRK-123",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.OrderStatus)
	assert.Equal(t, "TRK-123", got.TrackingNumber)
}

func TestCancelOwnershipAndTerminalStates(t *testing.T) {
	repo := newMockRepo()
	shipped := seedOrder(repo, StatusShipped)
	open := seedOrder(repo, StatusConfirmed)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	_, err := svc.Cancel(context.Background(), uuid.NewString(), string(user.RoleCustomer), open.ID.String())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Cancel(context.Background(), shipped.UserID.String(), string(user.RoleCustomer), shipped.ID.String())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	got, err := svc.Cancel(context.Background(), open.UserID.String(), string(user.RoleCustomer), open.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.OrderStatus)
}

func TestMarkPaymentPendingIsIdempotent(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusCreated)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	require.NoError(t, svc.MarkPaymentPending(context.Background(), o.ID.String()))
	require.NoError(t, svc.MarkPaymentPending(context.Background(), o.ID.String()))

	stored, _ := repo.GetByID(context.Background(), o.ID.String())
	assert.Equal(t, StatusPaymentPending, stored.OrderStatus)

	// But not from a state that already moved past payment.
	stored.OrderStatus = StatusShipped
	repo.orders[o.ID.String()] = stored
	err := svc.MarkPaymentPending(context.Background(), o.ID.String())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestMarkPaidFirstObservationWins(t *testing.T) {
	repo := newMockRepo()
	o := seedOrder(repo, StatusPaymentPending)
	svc := newTestService(repo, &mockCarts{}, newMockLedger())

	paymentID := uuid.NewString()
	first, err := svc.MarkPaid(context.Background(), o.ID.String(), paymentID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := svc.MarkPaid(context.Background(), o.ID.String(), paymentID)
	require.NoError(t, err)
	assert.False(t, again)

	stored, _ := repo.GetByID(context.Background(), o.ID.String())
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, StatusConfirmed, stored.OrderStatus)
}

func TestCreateOrderUnknownVariant(t *testing.T) {
	v := uuid.New()
	svc := newTestService(newMockRepo(), &mockCarts{cart: cartOf(item(v, 1))}, newMockLedger())

	_, err := svc.Create(context.Background(), uuid.NewString(), CreateOrderRequest{ShippingAddress: validAddress()})
	assert.True(t, errors.Is(err, inventory.ErrVariantNotFound))
}
