package billing

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/models"
	"github.com/coreybb/chatshop/webutil"
)

const stripeTestSecret = "whsec_test_secret"

func stripeSignatureHeader(payload string, at time.Time, secret string) string {
	ts := fmt.Sprintf("%d", at.Unix())
	sig := webutil.SignHMACSHA256([]byte(secret), []byte(ts+"."+payload))
	return "t=" + ts + ",v1=" + sig
}

func newTestStripeClient(service *CheckoutService) *StripeClient {
	client := NewStripeClient(service, nil, StripeConfig{
		SecretKey:     "sk_test",
		SigningSecret: stripeTestSecret,
		SiteURL:       "https://shop.example.com",
	})
	return client
}

func TestStripeVerifyWebhook(t *testing.T) {
	client := newTestStripeClient(NewCheckoutService(newFakeCheckoutStore(), newFakeOrderStore()))
	now := time.Now()
	client.now = func() time.Time { return now }

	payload := `{"type":"checkout.session.completed"}`

	t.Run("valid signature", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(payload))
		r.Header.Set("Stripe-Signature", stripeSignatureHeader(payload, now, stripeTestSecret))
		assert.True(t, client.VerifyWebhook(r, []byte(payload)))
	})

	t.Run("tampered payload", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(payload))
		r.Header.Set("Stripe-Signature", stripeSignatureHeader(payload, now, stripeTestSecret))
		assert.False(t, client.VerifyWebhook(r, []byte(payload+" ")))
	})

	t.Run("wrong secret", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(payload))
		r.Header.Set("Stripe-Signature", stripeSignatureHeader(payload, now, "whsec_other"))
		assert.False(t, client.VerifyWebhook(r, []byte(payload)))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		stale := now.Add(-stripeSignatureTolerance - time.Minute)
		r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(payload))
		r.Header.Set("Stripe-Signature", stripeSignatureHeader(payload, stale, stripeTestSecret))
		assert.False(t, client.VerifyWebhook(r, []byte(payload)))
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(payload))
		assert.False(t, client.VerifyWebhook(r, []byte(payload)))
	})
}

func TestStripeSessionCompletedFulfillsCheckout(t *testing.T) {
	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 3, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	client := newTestStripeClient(service)

	_, err := service.RecordCheckout(context.Background(), 3, models.PaymentSystemStripe, "cs_test_42", "open")
	require.NoError(t, err)

	event := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_42","status":"complete"}}}`
	require.NoError(t, client.HandleEvent(context.Background(), []byte(event)))

	stored, err := checkouts.GetCheckoutByTrackingID(context.Background(), "cs_test_42")
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutStatusCompleted, stored.Status)
	assert.Equal(t, "cs_test_42", stored.CaptureID, "the session id doubles as the capture id")
	assert.Equal(t, models.OrderStatusComplete, orders.orders[3].Status)
}

func TestStripeDuplicateCompletionIsAbsorbed(t *testing.T) {
	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 3, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	notifier := &recordingNotifier{}
	service.SetNotifier(notifier)
	client := newTestStripeClient(service)

	_, err := service.RecordCheckout(context.Background(), 3, models.PaymentSystemStripe, "cs_test_42", "open")
	require.NoError(t, err)

	event := `{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_42"}}}`
	require.NoError(t, client.HandleEvent(context.Background(), []byte(event)))
	require.NoError(t, client.HandleEvent(context.Background(), []byte(event)))

	assert.Len(t, notifier.notified, 1)
}

func TestStripeIgnoresUnknownEvents(t *testing.T) {
	client := newTestStripeClient(NewCheckoutService(newFakeCheckoutStore(), newFakeOrderStore()))
	err := client.HandleEvent(context.Background(), []byte(`{"type":"invoice.paid","data":{"object":{}}}`))
	assert.NoError(t, err)
}
