package payment

import "context"

// Repository defines payment persistence.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	GetByProviderRef(ctx context.Context, providerPaymentID string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Payment, error)

	// SetProviderRef records the provider-side handle after intent creation.
	SetProviderRef(ctx context.Context, id, providerPaymentID string) error

	// Settle writes a terminal outcome only if the row is still PENDING.
	// Returns false when the payment was already settled.
	Settle(ctx context.Context, id string, status Status, transactionID, failureReason string) (bool, error)

	// RecordRefund accumulates a refund and flips to REFUNDED once the
	// accumulated total covers the full amount. The write is conditional
	// on the total not exceeding the captured amount; an over-refund
	// returns ErrInvalidAmount.
	RecordRefund(ctx context.Context, id string, amount float64) (*Payment, error)
}
