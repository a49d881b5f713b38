package models

import "time"

// OrderStatus defines the set of allowed statuses for an Order.
// "complete" is terminal and is set exactly once, by checkout fulfillment.
type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "new"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusComplete       OrderStatus = "complete"
	OrderStatusClosed         OrderStatus = "closed"
	OrderStatusCanceled       OrderStatus = "canceled"
	OrderStatusOnHold         OrderStatus = "on_hold"
	OrderStatusPaymentReview  OrderStatus = "payment_review"
)

// Order is a commerce transaction tied to a chat. Total is in minor
// currency units.
type Order struct {
	ID          int64       `json:"id"`
	ChatID      int64       `json:"chat_id"`
	ProductID   int64       `json:"product_id"`
	Total       int64       `json:"total"`
	Status      OrderStatus `json:"status"`
	Description string      `json:"description,omitempty"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	CanceledAt  *time.Time  `json:"canceled_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
