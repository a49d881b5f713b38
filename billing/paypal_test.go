package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/models"
)

type fakeProductStore struct {
	products map[int64]*models.Product
}

func (s *fakeProductStore) GetProductByID(_ context.Context, productID int64) (*models.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

// newPaypalAPIStub fakes the PayPal REST endpoints the client talks to.
func newPaypalAPIStub(t *testing.T, captureCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		require.True(t, ok, "token request must use basic auth")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))

		var req paypalOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.PurchaseUnits, 1)
		assert.Equal(t, "CAPTURE", req.Intent)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://paypal.test/approve/PP-ORDER-1", "rel": "approve", "method": "GET"},
			},
		})
	})

	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(captureCalls, 1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-ORDER-1",
			"status": "COMPLETED",
			"purchase_units": []map[string]any{
				{"payments": map[string]any{"captures": []map[string]string{{"id": "CAP-77"}}}},
			},
		})
	})

	return httptest.NewServer(mux)
}

func newTestPaypalClient(service *CheckoutService, apiBase string) *PaypalClient {
	return NewPaypalClient(service, &fakeProductStore{products: map[int64]*models.Product{
		5: {ID: 5, Name: "Mug", Description: "A mug.", Price: 1250, Currency: "USD"},
	}}, PaypalConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		WebhookID:    "WH-1",
		APIBase:      apiBase,
	})
}

func TestPaypalCheckOutCreatesOrderAndRecordsCheckout(t *testing.T) {
	var captureCalls int32
	server := newPaypalAPIStub(t, &captureCalls)
	defer server.Close()

	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 9, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	client := newTestPaypalClient(service, server.URL)

	approveLink, err := client.CheckOut(context.Background(), 9, 5)
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.test/approve/PP-ORDER-1", approveLink)

	stored, err := checkouts.GetCheckoutByTrackingID(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSystemPaypal, stored.System)
	assert.Equal(t, "CREATED", stored.Status)
	assert.Equal(t, models.OrderStatusPendingPayment, orders.orders[9].Status)
}

func TestPaypalApprovedEventCapturesFunds(t *testing.T) {
	var captureCalls int32
	server := newPaypalAPIStub(t, &captureCalls)
	defer server.Close()

	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 9, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	client := newTestPaypalClient(service, server.URL)

	_, err := service.RecordCheckout(context.Background(), 9, models.PaymentSystemPaypal, "PP-ORDER-1", "CREATED")
	require.NoError(t, err)

	event := `{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"PP-ORDER-1","purchase_units":[{"reference_id":"9"}]}}`
	require.NoError(t, client.HandleEvent(context.Background(), []byte(event)))

	assert.EqualValues(t, 1, atomic.LoadInt32(&captureCalls))
	stored, err := checkouts.GetCheckoutByTrackingID(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "CAP-77", stored.CaptureID)
	assert.Equal(t, "CAPTURED", stored.Status)
}

func TestPaypalCaptureEchoIsSkipped(t *testing.T) {
	var captureCalls int32
	server := newPaypalAPIStub(t, &captureCalls)
	defer server.Close()

	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 9, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	client := newTestPaypalClient(service, server.URL)

	_, err := service.RecordCheckout(context.Background(), 9, models.PaymentSystemPaypal, "PP-ORDER-1", "CAPTURED")
	require.NoError(t, err)

	// After capture, PayPal re-sends the approved event with payment details.
	echo := `{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"PP-ORDER-1","purchase_units":[{"payments":{"captures":[{"id":"CAP-77"}]}}]}}`
	require.NoError(t, client.HandleEvent(context.Background(), []byte(echo)))

	assert.Zero(t, atomic.LoadInt32(&captureCalls), "the echo must not trigger another capture")
	stored, err := checkouts.GetCheckoutByTrackingID(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "CAPTURED", stored.Status)
}

func TestPaypalCaptureCompletedFulfills(t *testing.T) {
	checkouts := newFakeCheckoutStore()
	orders := newFakeOrderStore(&models.Order{ID: 9, Status: models.OrderStatusNew})
	service := NewCheckoutService(checkouts, orders)
	client := newTestPaypalClient(service, "http://unused.test")

	_, err := service.RecordCheckout(context.Background(), 9, models.PaymentSystemPaypal, "PP-ORDER-1", "CAPTURED")
	require.NoError(t, err)
	_, err = service.UpdateCapture(context.Background(), "PP-ORDER-1", "CAP-77")
	require.NoError(t, err)

	event := `{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-77","status":"COMPLETED"}}`
	require.NoError(t, client.HandleEvent(context.Background(), []byte(event)))

	assert.Equal(t, models.OrderStatusComplete, orders.orders[9].Status)
}

func TestPaypalIgnoresUnknownEvents(t *testing.T) {
	client := newTestPaypalClient(NewCheckoutService(newFakeCheckoutStore(), newFakeOrderStore()), "http://unused.test")
	err := client.HandleEvent(context.Background(), []byte(`{"event_type":"BILLING.PLAN.CREATED","resource":{}}`))
	assert.NoError(t, err)
}

func TestMinorToDecimal(t *testing.T) {
	assert.Equal(t, "12.50", minorToDecimal(1250))
	assert.Equal(t, "0.05", minorToDecimal(5))
	assert.Equal(t, "7.00", minorToDecimal(700))
	assert.True(t, strings.HasSuffix(minorToDecimal(100), ".00"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 127))
	assert.Equal(t, "abcde", truncate("abcdef", 5))

	// A cap landing inside a multi-byte rune must back up to its start.
	s := "abécd" // é is two bytes, occupying indexes 2 and 3
	assert.Equal(t, "ab", truncate(s, 3))
	assert.Equal(t, "abé", truncate(s, 4))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("€", 50), 127)))
}
