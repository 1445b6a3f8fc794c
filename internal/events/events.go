package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic names. One topic per aggregate keeps ordering per key simple.
const (
	TopicOrders   = "storefront.orders"
	TopicPayments = "storefront.payments"
)

// Event types carried in the envelope.
const (
	EventOrderCreated     = "order.created"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// Envelope is the common wrapper for every published event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderEventPayload describes an order lifecycle change.
type OrderEventPayload struct {
	OrderID     string         `json:"order_id"`
	UserID      string         `json:"user_id"`
	OrderStatus string         `json:"order_status"`
	TotalAmount float64        `json:"total_amount"`
	Items       []OrderItemQty `json:"items,omitempty"`
}

// OrderItemQty is the reserved quantity for a single variant.
type OrderItemQty struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

// PaymentEventPayload describes a payment outcome.
type PaymentEventPayload struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Provider  string  `json:"provider"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// NewEnvelope wraps a payload, assigning identity and timestamp.
func NewEnvelope(producer, eventType string, payload interface{}) Envelope {
	b, _ := json.Marshal(payload)
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Producer:   producer,
		Payload:    b,
	}
}
