package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftcart/dropship-backend/internal/events"
	"github.com/driftcart/dropship-backend/internal/modules/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(repo *mockRepo, orders *mockOrders, gateways Registry) Service {
	log := zap.NewNop()
	rec := NewReconciler(repo, orders, events.NopPublisher{}, log, "test")
	return NewService(repo, orders, gateways, rec, log, 5*time.Second)
}

func TestSelectProvider(t *testing.T) {
	assert.Equal(t, ProviderSSLCommerz, SelectProvider("BDT"))
	assert.Equal(t, ProviderSSLCommerz, SelectProvider("bdt"))
	assert.Equal(t, ProviderStripe, SelectProvider("USD"))
	assert.Equal(t, ProviderStripe, SelectProvider("EUR"))
	assert.Equal(t, ProviderStripe, SelectProvider(""))
}

func TestCreateIntentRoutesByCurrency(t *testing.T) {
	o := testOrder(100)
	orders := &mockOrders{order: o}
	repo := newMockRepo()

	stripe := &fakeGateway{intent: &Intent{ProviderPaymentID: "pi_1", ClientSecret: "cs_1", Status: StatusPending}}
	ssl := &fakeGateway{intent: &Intent{ProviderPaymentID: "sess_1", RedirectURL: "https://pay.example/x", Status: StatusPending}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: stripe, ProviderSSLCommerz: ssl})

	resp, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "BDT"})
	require.NoError(t, err)
	assert.Equal(t, ProviderSSLCommerz, resp.Provider)
	assert.Equal(t, "https://pay.example/x", resp.RedirectURL)
	assert.Equal(t, 1, ssl.intentCalls)
	assert.Equal(t, 0, stripe.intentCalls)

	// The chosen provider is stored on the payment row.
	p, err := repo.GetByID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ProviderSSLCommerz, p.Provider)
	assert.Equal(t, "BDT", p.Currency)
	assert.InDelta(t, 100, p.Amount, 0.001)
}

func TestCreateIntentIsIdempotent(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{intent: &Intent{ProviderPaymentID: "pi_1", ClientSecret: "cs_1", Status: StatusPending}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	req := CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"}
	first, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)

	second, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 1, gw.intentCalls)
}

func TestCreateIntentHonoursClientKey(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{intent: &Intent{ProviderPaymentID: "pi_1", Status: StatusPending}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	req := CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD", IdempotencyKey: "attempt-a"}
	first, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)

	// Replays of the same caller key collapse onto the same attempt.
	second, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 1, gw.intentCalls)

	// A fresh caller key delimits a new attempt even while the previous
	// one is still open.
	gw.intent = &Intent{ProviderPaymentID: "pi_2", Status: StatusPending}
	req.IdempotencyKey = "attempt-b"
	third, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, third.PaymentID)
	assert.Equal(t, 2, gw.intentCalls)
}

func TestCreateIntentRetryAfterFailureIsNewAttempt(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{intent: &Intent{ProviderPaymentID: "pi_1", Status: StatusPending}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	req := CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"}
	first, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)

	// Settle the first attempt as failed; the next intent is a fresh row.
	_, err = repo.Settle(context.Background(), first.PaymentID, StatusFailed, "", "card declined")
	require.NoError(t, err)

	gw.intent = &Intent{ProviderPaymentID: "pi_2", Status: StatusPending}
	second, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER", req)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
}

func TestCreateIntentRejectsPaidOrder(t *testing.T) {
	o := testOrder(50)
	o.PaymentStatus = order.PaymentPaid
	orders := &mockOrders{order: o}
	svc := newTestService(newMockRepo(), orders, Registry{})

	_, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"})
	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)
}

func TestCreateIntentOwnership(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	svc := newTestService(newMockRepo(), orders, Registry{})

	_, err := svc.CreateIntent(context.Background(), "someone-else", "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"})
	assert.ErrorIs(t, err, order.ErrUnauthorized)
}

func TestCreateIntentGatewayFailureLeavesPending(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{intentErr: &GatewayError{Provider: ProviderStripe, Op: "create", Err: errors.New("timeout")}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	_, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"})
	require.Error(t, err)

	// The row exists and is still PENDING; verification can settle it.
	payments, err := repo.ListByOrder(context.Background(), o.ID.String())
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, StatusPending, payments[0].Status)

	// Retrying resumes the same attempt and reaches the provider again.
	gw.intentErr = nil
	gw.intent = &Intent{ProviderPaymentID: "pi_1", Status: StatusPending}
	resp, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, payments[0].ID.String(), resp.PaymentID)
}

func TestVerifySettlesPayment(t *testing.T) {
	o := testOrder(75)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{
		intent: &Intent{ProviderPaymentID: "pi_1", Status: StatusPending},
		verifyResult: &Outcome{
			Status:            StatusCompleted,
			ProviderPaymentID: "pi_1",
			TransactionID:     "ch_1",
			Amount:            75,
			Currency:          "USD",
		},
	}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	resp, err := svc.CreateIntent(context.Background(), o.UserID.String(), "CUSTOMER",
		CreateIntentRequest{OrderID: o.ID.String(), Currency: "USD"})
	require.NoError(t, err)

	p, err := svc.Verify(context.Background(), o.UserID.String(), "CUSTOMER", resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "ch_1", p.TransactionID)

	assert.Equal(t, order.PaymentPaid, orders.order.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, orders.order.OrderStatus)
	assert.Equal(t, resp.PaymentID, orders.paidWith)

	// Verifying a settled payment does not call the provider again.
	gw.verifyErr = errors.New("should not be called")
	p, err = svc.Verify(context.Background(), o.UserID.String(), "CUSTOMER", resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestVerifyRepairsUnpaidOrder(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{verifyErr: errors.New("should not be called")}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	// Settlement landed on the payment but the order write was lost.
	p := &Payment{
		ID: newID(), OrderID: o.ID, UserID: o.UserID, Provider: ProviderStripe,
		Amount: 50, Currency: "USD", Status: StatusCompleted,
		IdempotencyKey: "k1", TransactionID: "ch_1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	got, err := svc.Verify(context.Background(), o.UserID.String(), "CUSTOMER", p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, order.PaymentPaid, orders.order.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, orders.order.OrderStatus)
}

func TestRefundAccumulates(t *testing.T) {
	o := testOrder(50)
	o.PaymentStatus = order.PaymentPaid
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	p := &Payment{
		ID:             newID(),
		OrderID:        o.ID,
		UserID:         o.UserID,
		Provider:       ProviderStripe,
		Amount:         50,
		Currency:       "USD",
		Status:         StatusCompleted,
		IdempotencyKey: "k1",
		TransactionID:  "ch_1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	got, err := svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.InDelta(t, 20, got.RefundedAmount, 0.001)

	got, err = svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.InDelta(t, 50, got.RefundedAmount, 0.001)
	assert.Equal(t, []float64{20, 20, 10}, gw.refunds)

	// The order records the refund without touching fulfilment.
	assert.Equal(t, order.PaymentRefunded, orders.order.PaymentStatus)
	assert.Equal(t, order.StatusCreated, orders.order.OrderStatus)
}

func TestRefundRejectsOverAndInvalidAmounts(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	svc := newTestService(repo, orders, Registry{ProviderStripe: &fakeGateway{}})

	p := &Payment{
		ID: newID(), OrderID: o.ID, UserID: o.UserID, Provider: ProviderStripe,
		Amount: 50, Currency: "USD", Status: StatusCompleted, IdempotencyKey: "k1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 60})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: -5})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordRefundGuardsAgainstStaleReads(t *testing.T) {
	repo := newMockRepo()
	o := testOrder(50)
	p := &Payment{
		ID: newID(), OrderID: o.ID, UserID: o.UserID, Provider: ProviderStripe,
		Amount: 50, Currency: "USD", Status: StatusCompleted, IdempotencyKey: "k1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	// Two $30 refunds admitted against the same stale snapshot: the
	// accumulation condition in the write lets only the first commit.
	got, err := repo.RecordRefund(context.Background(), p.ID.String(), 30)
	require.NoError(t, err)
	assert.InDelta(t, 30, got.RefundedAmount, 0.001)

	_, err = repo.RecordRefund(context.Background(), p.ID.String(), 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	current, _ := repo.GetByID(context.Background(), p.ID.String())
	assert.InDelta(t, 30, current.RefundedAmount, 0.001)
	assert.Equal(t, StatusCompleted, current.Status)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	svc := newTestService(repo, orders, Registry{ProviderStripe: &fakeGateway{}})

	p := &Payment{
		ID: newID(), OrderID: o.ID, UserID: o.UserID, Provider: ProviderStripe,
		Amount: 50, Currency: "USD", Status: StatusPending, IdempotencyKey: "k1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.Refund(context.Background(), p.ID.String(), RefundRequest{Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidPaymentState)
}

func TestHandleWebhookRejectsBadSignatureBeforeState(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()
	gw := &fakeGateway{webhookErr: ErrBadSignature}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	err := svc.HandleWebhook(context.Background(), ProviderStripe, nil, []byte(`{}`))
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, 0, orders.markPaidCalls)
}

func TestHandleWebhookUnknownPaymentIsAccepted(t *testing.T) {
	orders := &mockOrders{}
	gw := &fakeGateway{webhookEvent: &WebhookEvent{
		Type:              "payment_intent.succeeded",
		ProviderPaymentID: "pi_unknown",
		Outcome:           Outcome{Status: StatusCompleted, ProviderPaymentID: "pi_unknown"},
	}}
	svc := newTestService(newMockRepo(), orders, Registry{ProviderStripe: gw})

	err := svc.HandleWebhook(context.Background(), ProviderStripe, nil, []byte(`{}`))
	assert.NoError(t, err)
}

func TestHandleWebhookSettlesByProviderRef(t *testing.T) {
	o := testOrder(50)
	orders := &mockOrders{order: o}
	repo := newMockRepo()

	p := &Payment{
		ID: newID(), OrderID: o.ID, UserID: o.UserID, Provider: ProviderStripe,
		Amount: 50, Currency: "USD", Status: StatusPending,
		IdempotencyKey: "k1", ProviderPaymentID: "pi_1",
	}
	require.NoError(t, repo.Create(context.Background(), p))

	gw := &fakeGateway{webhookEvent: &WebhookEvent{
		Type:              "payment_intent.succeeded",
		ProviderPaymentID: "pi_1",
		Outcome: Outcome{
			Status: StatusCompleted, ProviderPaymentID: "pi_1", TransactionID: "ch_1",
		},
	}}
	svc := newTestService(repo, orders, Registry{ProviderStripe: gw})

	require.NoError(t, svc.HandleWebhook(context.Background(), ProviderStripe, nil, []byte(`{}`)))

	got, err := repo.GetByID(context.Background(), p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, order.PaymentPaid, orders.order.PaymentStatus)
}
