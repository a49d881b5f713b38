package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/billing"
	"github.com/coreybb/chatshop/clients"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

type stubPlatformClient struct {
	verified   bool
	parseErr   error
	sendCalled bool
}

func (s *stubPlatformClient) Platform() models.BotType { return models.BotTypeOK }

func (s *stubPlatformClient) ParseWebhook(*http.Request, []byte) (*events.EventReceived, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return &events.EventReceived{BotID: 1, ChatIDInMessenger: "c"}, nil
}

func (s *stubPlatformClient) VerifyRequest(*http.Request) bool { return s.verified }

func (s *stubPlatformClient) SendMessage(context.Context, events.EventToSend) error {
	s.sendCalled = true
	return nil
}

func TestPlatformWebhookRejectsUnverified(t *testing.T) {
	client := &stubPlatformClient{verified: false}
	handler := NewPlatformHandler(clients.NewRegistry(client), nil)

	r := httptest.NewRequest("POST", "/webhooks/ok", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.Handle(models.BotTypeOK)(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPlatformWebhookDropsUnparsableWithOK(t *testing.T) {
	client := &stubPlatformClient{verified: true, parseErr: errors.New("bad json")}
	handler := NewPlatformHandler(clients.NewRegistry(client), nil)

	r := httptest.NewRequest("POST", "/webhooks/ok", strings.NewReader(`garbage`))
	w := httptest.NewRecorder()
	handler.Handle(models.BotTypeOK)(w, r)

	// The platform must not retry a payload we cannot use.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestPlatformWebhookUnknownPlatform(t *testing.T) {
	handler := NewPlatformHandler(clients.NewRegistry(), nil)

	r := httptest.NewRequest("POST", "/webhooks/ok", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.Handle(models.BotTypeOK)(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubPaymentClient struct {
	verified  bool
	handleErr error
	handled   [][]byte
}

func (s *stubPaymentClient) System() models.PaymentSystem { return models.PaymentSystemStripe }

func (s *stubPaymentClient) CheckOut(context.Context, int64, int64) (string, error) {
	return "", nil
}

func (s *stubPaymentClient) VerifyWebhook(*http.Request, []byte) bool { return s.verified }

func (s *stubPaymentClient) HandleEvent(_ context.Context, body []byte) error {
	s.handled = append(s.handled, body)
	return s.handleErr
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	client := &stubPaymentClient{verified: false}
	handler := NewBillingHandler(billing.NewPaymentRegistry(client), nil, "pk_test")

	r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.Handle(models.PaymentSystemStripe)(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, client.handled)
}

func TestBillingWebhookAcksVerifiedEvents(t *testing.T) {
	client := &stubPaymentClient{verified: true}
	handler := NewBillingHandler(billing.NewPaymentRegistry(client), nil, "pk_test")

	r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(`{"type":"x"}`))
	w := httptest.NewRecorder()
	handler.Handle(models.PaymentSystemStripe)(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, client.handled, 1)
}

func TestBillingWebhookAcksEvenWhenHandlingFails(t *testing.T) {
	client := &stubPaymentClient{verified: true, handleErr: errors.New("db down")}
	handler := NewBillingHandler(billing.NewPaymentRegistry(client), nil, "pk_test")

	r := httptest.NewRequest("POST", "/billing/stripe", strings.NewReader(`{"type":"x"}`))
	w := httptest.NewRecorder()
	handler.Handle(models.PaymentSystemStripe)(w, r)

	// Provider retries cannot fix our internal errors.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStripeRedirectRendersCheckoutPage(t *testing.T) {
	handler := NewBillingHandler(billing.NewPaymentRegistry(), nil, "pk_test_123")

	router := chi.NewRouter()
	router.Get("/billing/stripe_redirect/{sessionID}", handler.StripeRedirect)

	r := httptest.NewRequest("GET", "/billing/stripe_redirect/cs_test_9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pk_test_123")
	assert.Contains(t, w.Body.String(), "cs_test_9")
	assert.Contains(t, w.Body.String(), "redirectToCheckout")
}
