package order

import "context"

// Repository defines order data access.
type Repository interface {
	// CreateOrder persists the order and its items in one transaction.
	CreateOrder(ctx context.Context, o *Order) error

	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// UpdateStatus advances the fulfilment status, optionally attaching a
	// tracking number.
	UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string) error

	// Cancel releases every reserved line item and flips the order to
	// CANCELLED, committing together or not at all. Returns
	// ErrInvalidStatusTransition when a concurrent change made the order
	// uncancellable.
	Cancel(ctx context.Context, o *Order) error

	// MarkPaid is the single idempotent settlement write: it sets
	// payment_status to PAID, records the winning payment, and advances
	// CREATED/PAYMENT_PENDING to CONFIRMED, all conditional on the order not
	// already being PAID. The boolean reports whether this call was the
	// first observation.
	MarkPaid(ctx context.Context, orderID, paymentID string) (bool, error)

	// SetPaymentStatus records a non-settlement payment outcome
	// (FAILED, REFUNDED) without touching the fulfilment status.
	SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) error
}
