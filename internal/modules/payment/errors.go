package payment

import "errors"

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrOrderAlreadyPaid    = errors.New("order already paid")
	ErrInvalidPaymentState = errors.New("invalid payment state")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrOutcomeConflict     = errors.New("conflicting payment outcome")
	ErrNoGateway           = errors.New("no gateway registered for provider")
	ErrBadSignature        = errors.New("webhook signature verification failed")
)

// GatewayError wraps a provider-side failure. The payment stays PENDING when
// the outcome is unknown (timeouts, 5xx) so verification can settle it later.
type GatewayError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return string(e.Provider) + " " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }
