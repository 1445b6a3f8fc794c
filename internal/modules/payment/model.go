package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderStripe     Provider = "STRIPE"
	ProviderSSLCommerz Provider = "SSLCOMMERZ"
)

// Status represents the lifecycle of a payment attempt.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// Settled reports whether the status is a terminal success/failure outcome.
// A settled payment never moves back to PENDING.
func (s Status) Settled() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Payment is one attempt to collect an order's total through a provider.
// IdempotencyKey is unique per (order, attempt fingerprint) so a retried
// request resolves to the same row instead of a second charge.
type Payment struct {
	ID                uuid.UUID `json:"id"`
	OrderID           uuid.UUID `json:"order_id"`
	UserID            uuid.UUID `json:"user_id"`
	Provider          Provider  `json:"provider"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	Status            Status    `json:"status"`
	IdempotencyKey    string    `json:"idempotency_key"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	TransactionID     string    `json:"transaction_id,omitempty"`
	RefundedAmount    float64   `json:"refunded_amount"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SelectProvider routes a currency to a gateway. Local-currency orders go
// through SSLCommerz, everything else through Stripe.
func SelectProvider(currency string) Provider {
	if strings.EqualFold(currency, "BDT") {
		return ProviderSSLCommerz
	}
	return ProviderStripe
}

// CreateIntentRequest starts a payment attempt for an order. The optional
// IdempotencyKey lets the caller delimit attempts; when absent the attempt
// is fingerprinted server-side.
type CreateIntentRequest struct {
	OrderID        string `json:"order_id"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RefundRequest refunds part or all of a completed payment.
type RefundRequest struct {
	Amount float64 `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// IntentResponse is returned to the client to continue the flow against the
// provider (confirm on Stripe, redirect for SSLCommerz).
type IntentResponse struct {
	PaymentID    string   `json:"payment_id"`
	Provider     Provider `json:"provider"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURL  string   `json:"redirect_url,omitempty"`
	Status       Status   `json:"status"`
}
