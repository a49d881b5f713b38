package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/coreybb/chatshop/models"
)

// CheckoutService owns the checkout state machine shared by all payment
// providers. Provider clients create and advance checkouts through it;
// webhook reconciliation and order fulfillment happen here.
type CheckoutService struct {
	checkouts CheckoutStore
	orders    OrderStore
	notifier  Notifier
}

func NewCheckoutService(checkouts CheckoutStore, orders OrderStore) *CheckoutService {
	return &CheckoutService{checkouts: checkouts, orders: orders}
}

// SetNotifier wires the post-payment notifier. Set after construction because
// the notifier (the dialog layer) is built on top of billing.
func (s *CheckoutService) SetNotifier(n Notifier) {
	s.notifier = n
}

// RecordCheckout persists a newly created provider-side checkout and moves
// the order to pending_payment.
func (s *CheckoutService) RecordCheckout(ctx context.Context, orderID int64, system models.PaymentSystem, trackingID, status string) (*models.Checkout, error) {
	checkout := &models.Checkout{
		OrderID:    orderID,
		System:     system,
		TrackingID: trackingID,
		Status:     status,
	}
	if err := s.checkouts.CreateCheckout(ctx, checkout); err != nil {
		return nil, fmt.Errorf("failed to record %s checkout for order %d: %w", system, orderID, err)
	}
	if err := s.orders.UpdateOrderStatus(ctx, orderID, models.OrderStatusPendingPayment); err != nil {
		return nil, fmt.Errorf("failed to move order %d to pending payment: %w", orderID, err)
	}
	return checkout, nil
}

// UpdateCheckout advances the checkout identified by the provider's tracking
// id to a new status. A completed checkout is immutable: the update is
// refused with a CompletedCheckoutError.
func (s *CheckoutService) UpdateCheckout(ctx context.Context, trackingID, status string) (*models.Checkout, error) {
	checkout, err := s.checkouts.GetCheckoutByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout by tracking id %s: %w", trackingID, err)
	}
	if checkout.Completed() {
		return nil, &CompletedCheckoutError{
			ID:         checkout.ID,
			System:     checkout.System,
			TrackingID: checkout.TrackingID,
			NewStatus:  status,
		}
	}
	if err := s.checkouts.UpdateCheckoutStatus(ctx, checkout.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update checkout %d status: %w", checkout.ID, err)
	}
	checkout.Status = status
	return checkout, nil
}

// UpdateCapture stores the provider's capture id on the checkout identified
// by its tracking id.
func (s *CheckoutService) UpdateCapture(ctx context.Context, trackingID, captureID string) (*models.Checkout, error) {
	checkout, err := s.checkouts.GetCheckoutByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout by tracking id %s: %w", trackingID, err)
	}
	if checkout.Completed() {
		return nil, &CompletedCheckoutError{
			ID:         checkout.ID,
			System:     checkout.System,
			TrackingID: checkout.TrackingID,
			NewStatus:  checkout.Status,
		}
	}
	if err := s.checkouts.UpdateCheckoutCapture(ctx, checkout.ID, captureID); err != nil {
		return nil, fmt.Errorf("failed to store capture id on checkout %d: %w", checkout.ID, err)
	}
	checkout.CaptureID = captureID
	return checkout, nil
}

// FulfillByTrackingID completes the checkout identified by the provider's
// tracking id. Used by providers whose completion event carries the original
// checkout id (Stripe sessions).
func (s *CheckoutService) FulfillByTrackingID(ctx context.Context, trackingID string) (*models.Checkout, error) {
	checkout, err := s.checkouts.GetCheckoutByTrackingID(ctx, trackingID)
	return s.fulfill(ctx, checkout, err, "tracking id "+trackingID)
}

// FulfillByCaptureID completes the checkout identified by the provider's
// capture id. Used by providers whose completion event carries only the
// capture id (PayPal).
func (s *CheckoutService) FulfillByCaptureID(ctx context.Context, captureID string) (*models.Checkout, error) {
	checkout, err := s.checkouts.GetCheckoutByCaptureID(ctx, captureID)
	return s.fulfill(ctx, checkout, err, "capture id "+captureID)
}

// fulfill marks the checkout COMPLETED, completes its order and fires the
// payment notification. Webhooks can arrive more than once and can reference
// checkouts this service never created, so both the duplicate and the orphan
// are absorbed here: logged, then treated as a no-op so the provider still
// gets its acknowledgement. An order can carry several checkouts (retries
// with a different provider), so the duplicate check keys on the order's
// status, not just the checkout's: an order is paid at most once.
func (s *CheckoutService) fulfill(ctx context.Context, checkout *models.Checkout, lookupErr error, ref string) (*models.Checkout, error) {
	if lookupErr != nil {
		if errors.Is(lookupErr, sql.ErrNoRows) {
			log.Printf("ERROR (CheckoutService): Payment completion for unknown checkout, %s", ref)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkout by %s: %w", ref, lookupErr)
	}
	order, err := s.orders.GetOrder(ctx, checkout.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d for checkout %d: %w", checkout.OrderID, checkout.ID, err)
	}
	if checkout.Completed() || order.Status == models.OrderStatusComplete {
		log.Printf("WARN (CheckoutService): Duplicate completion event for order %d, checkout %d (%s)", order.ID, checkout.ID, ref)
		return nil, nil
	}

	if err := s.checkouts.UpdateCheckoutStatus(ctx, checkout.ID, models.CheckoutStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to complete checkout %d: %w", checkout.ID, err)
	}
	checkout.Status = models.CheckoutStatusCompleted

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusComplete); err != nil {
		return nil, fmt.Errorf("failed to complete order %d: %w", order.ID, err)
	}
	order.Status = models.OrderStatusComplete
	log.Printf("INFO (CheckoutService): Checkout %d completed, order %d paid via %s", checkout.ID, order.ID, checkout.System)

	if s.notifier != nil {
		s.notifier.NotifyPaymentCompleted(ctx, order)
	}
	return checkout, nil
}
