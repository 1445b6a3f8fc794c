package payment

import (
	"context"
	"net/http"
)

// Intent is the provider-side handle created for a payment attempt.
type Intent struct {
	ProviderPaymentID string
	ClientSecret      string
	RedirectURL       string
	Status            Status
}

// Outcome is a provider's answer about where a payment landed.
type Outcome struct {
	Status            Status
	ProviderPaymentID string
	TransactionID     string
	Amount            float64
	Currency          string
	FailureReason     string
}

// WebhookEvent is a decoded, signature-verified provider notification.
// Payments are looked up by the provider's reference, never by anything the
// caller put in the request body.
type WebhookEvent struct {
	Type              string
	ProviderPaymentID string
	TransactionID     string
	Outcome           Outcome
}

// Gateway abstracts one payment provider.
type Gateway interface {
	// CreateIntent opens a payment attempt with the provider. The
	// idempotency key is forwarded so provider-side retries collapse too.
	CreateIntent(ctx context.Context, p *Payment, idempotencyKey string) (*Intent, error)

	// Verify asks the provider for the authoritative state of a payment.
	Verify(ctx context.Context, p *Payment) (*Outcome, error)

	// Refund returns amount to the payer. Partial refunds are allowed.
	Refund(ctx context.Context, p *Payment, amount float64) error

	// DecodeWebhook verifies the request signature and decodes the event.
	// An invalid signature returns ErrBadSignature and no event.
	DecodeWebhook(r *http.Request, body []byte) (*WebhookEvent, error)
}

// Registry maps providers to their gateways. Populated at startup.
type Registry map[Provider]Gateway

// Get returns the gateway for a provider.
func (reg Registry) Get(p Provider) (Gateway, error) {
	gw, ok := reg[p]
	if !ok {
		return nil, ErrNoGateway
	}
	return gw, nil
}
