package order

import "errors"

var (
	ErrNotFound                = errors.New("order: not found")
	ErrEmptyCart               = errors.New("order: cart is empty")
	ErrUnauthorized            = errors.New("order: not allowed")
	ErrInvalidStatusTransition = errors.New("order: invalid status transition")
	ErrInvalidAddress          = errors.New("order: incomplete shipping address")
)
