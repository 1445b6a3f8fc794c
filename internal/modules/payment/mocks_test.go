package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/driftcart/dropship-backend/internal/modules/order"
	"github.com/google/uuid"
)

// mockRepo implements Repository in memory with the same settlement rules
// as the Postgres implementation.
type mockRepo struct {
	mu       sync.Mutex
	payments map[string]*Payment
	byKey    map[string]string
}

func newMockRepo() *mockRepo {
	return &mockRepo{payments: map[string]*Payment{}, byKey: map[string]string{}}
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byKey[p.IdempotencyKey]; dup {
		return ErrPaymentNotFound // stands in for the unique violation
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	m.payments[p.ID.String()] = &cp
	m.byKey[p.IdempotencyKey] = p.ID.String()
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByIdempotencyKey(_ context.Context, key string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *mockRepo) GetByProviderRef(_ context.Context, ref string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderPaymentID == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *mockRepo) ListByOrder(_ context.Context, orderID string) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.OrderID.String() == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) SetProviderRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.ProviderPaymentID = ref
	return nil
}

func (m *mockRepo) Settle(_ context.Context, id string, status Status, transactionID, failureReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, ErrPaymentNotFound
	}
	if p.Status != StatusPending {
		return false, nil
	}
	p.Status = status
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.FailureReason = failureReason
	return true, nil
}

func (m *mockRepo) RecordRefund(_ context.Context, id string, amount float64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if p.RefundedAmount+amount > p.Amount {
		return nil, ErrInvalidAmount
	}
	p.RefundedAmount += amount
	if p.RefundedAmount >= p.Amount {
		p.Status = StatusRefunded
	}
	now := time.Now().UTC()
	p.RefundedAt = &now
	cp := *p
	return &cp, nil
}

// mockOrders implements Orders over a single backing order.
type mockOrders struct {
	mu            sync.Mutex
	order         *order.Order
	paidWith      string
	markPaidCalls int
	failMarkPaid  int // fail this many MarkPaid calls before succeeding
}

func (m *mockOrders) Get(_ context.Context, userID, role, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.order == nil || m.order.ID.String() != id {
		return nil, order.ErrNotFound
	}
	if role != "ADMIN" && m.order.UserID.String() != userID {
		return nil, order.ErrUnauthorized
	}
	cp := *m.order
	return &cp, nil
}

func (m *mockOrders) MarkPaymentPending(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.order != nil && m.order.OrderStatus == order.StatusCreated {
		m.order.OrderStatus = order.StatusPaymentPending
	}
	return nil
}

func (m *mockOrders) MarkPaid(_ context.Context, orderID, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPaidCalls++
	if m.failMarkPaid > 0 {
		m.failMarkPaid--
		return false, errors.New("orders unavailable")
	}
	if m.order == nil || m.order.ID.String() != orderID {
		return false, order.ErrNotFound
	}
	if m.order.PaymentStatus == order.PaymentPaid {
		return false, nil
	}
	m.order.PaymentStatus = order.PaymentPaid
	m.order.OrderStatus = order.StatusConfirmed
	m.paidWith = paymentID
	return true, nil
}

func (m *mockOrders) SetPaymentStatus(_ context.Context, orderID string, status order.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.order == nil || m.order.ID.String() != orderID {
		return order.ErrNotFound
	}
	m.order.PaymentStatus = status
	return nil
}

// fakeGateway scripts provider behaviour.
type fakeGateway struct {
	intent       *Intent
	intentErr    error
	intentCalls  int
	lastIdemKey  string
	verifyResult *Outcome
	verifyErr    error
	refundErr    error
	refunds      []float64
	webhookEvent *WebhookEvent
	webhookErr   error
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ *Payment, idempotencyKey string) (*Intent, error) {
	g.intentCalls++
	g.lastIdemKey = idempotencyKey
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return g.intent, nil
}

func (g *fakeGateway) Verify(_ context.Context, _ *Payment) (*Outcome, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyResult, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ *Payment, amount float64) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return nil
}

func (g *fakeGateway) DecodeWebhook(_ *http.Request, _ []byte) (*WebhookEvent, error) {
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	return g.webhookEvent, nil
}

func newID() uuid.UUID { return uuid.New() }

func testOrder(total float64) *order.Order {
	return &order.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		TotalAmount:   total,
		PaymentStatus: order.PaymentPending,
		OrderStatus:   order.StatusCreated,
	}
}
