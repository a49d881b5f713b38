package models

import "time"

// PaymentSystem identifies the payment provider behind a Checkout.
type PaymentSystem string

const (
	PaymentSystemPaypal PaymentSystem = "paypal"
	PaymentSystemStripe PaymentSystem = "stripe"
)

// CheckoutStatusCompleted is the terminal checkout status. The status column
// otherwise mirrors the provider's own vocabulary ("CREATED", "APPROVED",
// "open", ...), so it stays a free-form string.
const CheckoutStatusCompleted = "COMPLETED"

// Checkout is one attempt to collect payment for an Order through a specific
// provider. TrackingID is the provider's order/session id; CaptureID is the
// provider's fund-capture id, populated once capture succeeds. Checkouts are
// never deleted; they form the payment audit trail of an order.
type Checkout struct {
	ID         int64         `json:"id"`
	OrderID    int64         `json:"order_id"`
	System     PaymentSystem `json:"system"`
	TrackingID string        `json:"tracking_id"`
	CaptureID  string        `json:"capture_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Completed reports whether the checkout has reached its terminal state.
func (c *Checkout) Completed() bool {
	return c.Status == CheckoutStatusCompleted
}
