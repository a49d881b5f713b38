// Package billing implements payment collection: creating provider-side
// checkouts for orders and reconciling provider webhooks back into order
// state. Provider specifics live in the PaymentClient implementations; the
// shared state machine lives in CheckoutService.
package billing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreybb/chatshop/models"
)

// CheckoutStore persists checkout records. Implemented by
// datastore.CheckoutRepository.
type CheckoutStore interface {
	CreateCheckout(ctx context.Context, checkout *models.Checkout) error
	GetCheckoutByTrackingID(ctx context.Context, trackingID string) (*models.Checkout, error)
	GetCheckoutByCaptureID(ctx context.Context, captureID string) (*models.Checkout, error)
	UpdateCheckoutStatus(ctx context.Context, checkoutID int64, status string) error
	UpdateCheckoutCapture(ctx context.Context, checkoutID int64, captureID string) error
}

// OrderStore is the slice of order persistence billing needs. Implemented by
// datastore.OrderRepository.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
}

// ProductStore resolves the product being paid for. Implemented by
// datastore.ProductRepository.
type ProductStore interface {
	GetProductByID(ctx context.Context, productID int64) (*models.Product, error)
}

// Notifier is told when an order's payment completes, so the buyer can be
// messaged. Implemented by the dialog layer; billing never imports it.
type Notifier interface {
	NotifyPaymentCompleted(ctx context.Context, order *models.Order)
}

// PaymentClient is the adapter interface for payment providers.
type PaymentClient interface {
	// System returns the provider this client handles.
	System() models.PaymentSystem
	// CheckOut creates a provider-side checkout for the order and returns
	// the URL the buyer must visit to approve payment. The client records
	// the new checkout through the CheckoutService.
	CheckOut(ctx context.Context, orderID, productID int64) (string, error)
	// VerifyWebhook authenticates a provider webhook request.
	VerifyWebhook(r *http.Request, body []byte) bool
	// HandleEvent processes one verified webhook payload.
	HandleEvent(ctx context.Context, body []byte) error
}

// PaymentRegistry maps payment systems to their clients.
type PaymentRegistry struct {
	bySystem map[models.PaymentSystem]PaymentClient
}

func NewPaymentRegistry(clients ...PaymentClient) *PaymentRegistry {
	bySystem := make(map[models.PaymentSystem]PaymentClient, len(clients))
	for _, c := range clients {
		bySystem[c.System()] = c
	}
	return &PaymentRegistry{bySystem: bySystem}
}

// ForSystem returns the client registered for a payment system.
func (r *PaymentRegistry) ForSystem(system models.PaymentSystem) (PaymentClient, error) {
	client, ok := r.bySystem[system]
	if !ok {
		return nil, fmt.Errorf("no payment client registered for system %q", system)
	}
	return client, nil
}
