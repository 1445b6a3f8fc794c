package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/driftcart/dropship-backend/internal/modules/order"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orders is the slice of the order service the payment flow consumes.
type Orders interface {
	Get(ctx context.Context, userID, role, id string) (*order.Order, error)
	MarkPaymentPending(ctx context.Context, orderID string) error
	MarkPaid(ctx context.Context, orderID, paymentID string) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error
}

// Service defines payment business logic.
type Service interface {
	// CreateIntent opens (or re-returns) a payment attempt for an order.
	// Retrying the same attempt resolves to the existing payment row.
	CreateIntent(ctx context.Context, userID, role string, req CreateIntentRequest) (*IntentResponse, error)

	// Verify pulls the authoritative status from the provider and
	// reconciles it into the payment and its order.
	Verify(ctx context.Context, userID, role, paymentID string) (*Payment, error)

	Get(ctx context.Context, userID, role, id string) (*Payment, error)
	ListByOrder(ctx context.Context, userID, role, orderID string) ([]*Payment, error)

	// Refund returns money on a completed payment. Partial refunds
	// accumulate; the payment flips to REFUNDED once fully covered.
	Refund(ctx context.Context, paymentID string, req RefundRequest) (*Payment, error)

	// HandleWebhook verifies, decodes and reconciles a provider
	// notification. Signature failures reject before any state change.
	HandleWebhook(ctx context.Context, provider Provider, r *http.Request, body []byte) error
}

type service struct {
	repo           Repository
	orders         Orders
	gateways       Registry
	reconciler     *Reconciler
	log            *zap.Logger
	gatewayTimeout time.Duration
}

// NewService creates a new payment service.
func NewService(repo Repository, orders Orders, gateways Registry, rec *Reconciler, log *zap.Logger, gatewayTimeout time.Duration) Service {
	return &service{
		repo:           repo,
		orders:         orders,
		gateways:       gateways,
		reconciler:     rec,
		log:            log,
		gatewayTimeout: gatewayTimeout,
	}
}

func (s *service) CreateIntent(ctx context.Context, userID, role string, req CreateIntentRequest) (*IntentResponse, error) {
	o, err := s.orders.Get(ctx, userID, role, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if !o.OrderStatus.Cancellable() {
		// Cancelled / delivered orders take no new payments.
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidPaymentState, o.OrderStatus)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	provider := SelectProvider(currency)

	// The attempt fingerprint keys idempotency: retries of the same open
	// attempt land on the same row, a retry after a failed attempt starts
	// a fresh one.
	key, err := s.attemptKey(ctx, o, currency, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetByIdempotencyKey(ctx, key); err == nil {
		return s.resumeIntent(ctx, existing)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	p := &Payment{
		ID:             uuid.New(),
		OrderID:        o.ID,
		UserID:         o.UserID,
		Provider:       provider,
		Amount:         o.TotalAmount,
		Currency:       currency,
		Status:         StatusPending,
		IdempotencyKey: key,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// A concurrent retry may have inserted the same key first.
		if existing, lookupErr := s.repo.GetByIdempotencyKey(ctx, key); lookupErr == nil {
			return s.resumeIntent(ctx, existing)
		}
		return nil, err
	}

	if err := s.orders.MarkPaymentPending(ctx, p.OrderID.String()); err != nil {
		s.log.Warn("order not moved to payment pending",
			zap.String("order_id", p.OrderID.String()), zap.Error(err))
	}

	return s.openIntent(ctx, p)
}

// openIntent calls the provider for a PENDING payment row. On a provider
// failure the row stays PENDING so Verify can settle it later.
func (s *service) openIntent(ctx context.Context, p *Payment) (*IntentResponse, error) {
	gw, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	intent, err := gw.CreateIntent(gctx, p, p.IdempotencyKey)
	if err != nil {
		s.log.Error("gateway intent creation failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("provider", string(p.Provider)), zap.Error(err))
		return nil, err
	}

	if intent.ProviderPaymentID != "" {
		if err := s.repo.SetProviderRef(ctx, p.ID.String(), intent.ProviderPaymentID); err != nil {
			return nil, err
		}
		p.ProviderPaymentID = intent.ProviderPaymentID
	}

	return &IntentResponse{
		PaymentID:    p.ID.String(),
		Provider:     p.Provider,
		ClientSecret: intent.ClientSecret,
		RedirectURL:  intent.RedirectURL,
		Status:       p.Status,
	}, nil
}

// resumeIntent re-returns an existing attempt found via the idempotency key.
func (s *service) resumeIntent(ctx context.Context, p *Payment) (*IntentResponse, error) {
	if p.Status == StatusCompleted {
		return nil, ErrOrderAlreadyPaid
	}
	if p.ProviderPaymentID == "" {
		// The earlier attempt never reached the provider; finish it now.
		return s.openIntent(ctx, p)
	}
	return &IntentResponse{
		PaymentID: p.ID.String(),
		Provider:  p.Provider,
		Status:    p.Status,
	}, nil
}

// attemptKey builds the idempotency fingerprint. A caller-supplied key is
// scoped to the order and currency so it cannot collide across orders.
// Without one, the number of already failed attempts is folded in so a
// retry after failure is a new attempt.
func (s *service) attemptKey(ctx context.Context, o *order.Order, currency, clientKey string) (string, error) {
	if clientKey != "" {
		return fmt.Sprintf("%s:%s:%s", o.ID, currency, clientKey), nil
	}
	attempts, err := s.repo.ListByOrder(ctx, o.ID.String())
	if err != nil {
		return "", err
	}
	failed := 0
	for _, p := range attempts {
		if p.Status == StatusFailed {
			failed++
		}
	}
	return fmt.Sprintf("%s:%s:%d", o.ID, currency, failed), nil
}

func (s *service) Verify(ctx context.Context, userID, role, paymentID string) (*Payment, error) {
	p, err := s.authorized(ctx, userID, role, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Settled() {
		if p.Status == StatusCompleted {
			// The order-side write may have failed after settlement;
			// re-drive it rather than calling the provider again.
			if _, err := s.orders.MarkPaid(ctx, p.OrderID.String(), p.ID.String()); err != nil {
				return nil, fmt.Errorf("mark order paid: %w", err)
			}
		}
		return p, nil
	}

	gw, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	outcome, err := gw.Verify(gctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.reconciler.Apply(ctx, p, outcome); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, paymentID)
}

func (s *service) Get(ctx context.Context, userID, role, id string) (*Payment, error) {
	return s.authorized(ctx, userID, role, id)
}

func (s *service) ListByOrder(ctx context.Context, userID, role, orderID string) ([]*Payment, error) {
	// Ownership rides on the order lookup.
	if _, err := s.orders.Get(ctx, userID, role, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *service) Refund(ctx context.Context, paymentID string, req RefundRequest) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: cannot refund %s payment", ErrInvalidPaymentState, p.Status)
	}
	if req.Amount <= 0 || p.RefundedAmount+req.Amount > p.Amount {
		return nil, ErrInvalidAmount
	}

	gw, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	if err := gw.Refund(gctx, p, req.Amount); err != nil {
		return nil, err
	}

	updated, err := s.repo.RecordRefund(ctx, p.ID.String(), req.Amount)
	if err != nil {
		return nil, err
	}
	if updated.Status == StatusRefunded {
		// Fully refunded: the order's payment status follows, its
		// fulfilment status does not.
		if err := s.orders.SetPaymentStatus(ctx, p.OrderID.String(), order.PaymentRefunded); err != nil {
			s.log.Error("order payment status not updated after refund",
				zap.String("order_id", p.OrderID.String()), zap.Error(err))
		}
		s.reconciler.publishOutcome(updated)
	}
	return updated, nil
}

func (s *service) HandleWebhook(ctx context.Context, provider Provider, r *http.Request, body []byte) error {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return err
	}

	ev, err := gw.DecodeWebhook(r, body)
	if err != nil {
		return err
	}

	// Look the payment up only by provider-echoed references, never by
	// anything a caller could have forged into the body.
	p, err := s.lookup(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.log.Warn("webhook for unknown payment",
				zap.String("provider", string(provider)), zap.String("type", ev.Type))
			return nil
		}
		return err
	}

	return s.reconciler.Apply(ctx, p, &ev.Outcome)
}

func (s *service) lookup(ctx context.Context, ev *WebhookEvent) (*Payment, error) {
	if ev.ProviderPaymentID != "" {
		return s.repo.GetByProviderRef(ctx, ev.ProviderPaymentID)
	}
	if ev.TransactionID != "" {
		// SSLCommerz echoes our payment id back as tran_id.
		return s.repo.GetByID(ctx, ev.TransactionID)
	}
	return nil, ErrPaymentNotFound
}

func (s *service) authorized(ctx context.Context, userID, role, id string) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != string(user.RoleAdmin) && p.UserID.String() != userID {
		return nil, order.ErrUnauthorized
	}
	return p, nil
}
