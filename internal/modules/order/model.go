package order

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks the money side of an order. It is correlated with, but
// independent from, the fulfilment status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Status is the fulfilment lifecycle of an order.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusProcessing     Status = "PROCESSING"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// validTransitions defines the forward-only status state machine.
// CANCELLED is unreachable once the order has shipped.
var validTransitions = map[Status][]Status{
	StatusCreated:        {StatusPaymentPending, StatusConfirmed, StatusCancelled},
	StatusPaymentPending: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// CanTransition reports whether moving from one status to the next respects
// the state machine.
func CanTransition(from, next Status) bool {
	for _, s := range validTransitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// ShippingAddress is where the order ships. Write-once at creation.
type ShippingAddress struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// OrderItem is one reserved line. The price is locked at reservation time and
// never recomputed, even when the catalog price changes later.
type OrderItem struct {
	VariantID       uuid.UUID `json:"variant_id"`
	Qty             int       `json:"qty"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	PriceAtPurchase float64   `json:"price_at_purchase"`
}

// Order is created once from a cart snapshot. Items and total are write-once;
// only the status fields and tracking number mutate afterwards.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     float64         `json:"total_amount"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	OrderStatus     Status          `json:"order_status"`
	PaymentID       *uuid.UUID      `json:"payment_id,omitempty"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TotalItems is the summed quantity across all lines. Computed on demand.
func (o *Order) TotalItems() int {
	total := 0
	for _, it := range o.Items {
		total += it.Qty
	}
	return total
}

// CreateOrderRequest is the checkout payload; the item list comes from the
// caller's cart, never from the request body.
type CreateOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Notes           string          `json:"notes,omitempty"`
}

// UpdateStatusRequest advances fulfilment and optionally attaches tracking.
type UpdateStatusRequest struct {
	OrderStatus    string `json:"order_status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}
