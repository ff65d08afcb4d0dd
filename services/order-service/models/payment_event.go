package models

import "time"

const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventPaymentRefunded  = "payment_refunded"
)

// payment-service → order-service
type PaymentEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`

	PaymentID string    `json:"payment_id,omitempty"`
	Amount    int       `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published for the notification and reporting collaborators.
type OrderEvent struct {
	Type           string      `json:"type"`
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	DeliveryDate   string      `json:"delivery_date"`
	Status         string      `json:"status"`
	PreviousStatus string      `json:"previous_status,omitempty"`
	FinalAmount    int         `json:"final_amount"`
	Lines          []OrderLine `json:"lines,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}
