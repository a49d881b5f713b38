package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreybb/chatshop/models"
	"github.com/coreybb/chatshop/webutil"
)

const (
	stripeAPIBase = "https://api.stripe.com"

	stripeEventSessionCompleted = "checkout.session.completed"

	// stripeSignatureTolerance bounds how stale a signed webhook may be.
	stripeSignatureTolerance = 5 * time.Minute
)

// StripeConfig carries the Stripe API credentials.
type StripeConfig struct {
	SecretKey     string
	SigningSecret string // webhook endpoint signing secret (whsec_...)
	APIBase       string // empty selects the live endpoint
	SiteURL       string // public base URL for redirect and result pages
}

// StripeClient implements PaymentClient for Stripe Checkout sessions. Stripe
// has no separate capture step: the session id doubles as the capture id,
// and checkout.session.completed both captures and completes.
type StripeClient struct {
	service    *CheckoutService
	products   ProductStore
	cfg        StripeConfig
	httpClient *http.Client

	handlers map[string]func(ctx context.Context, object json.RawMessage) error
	now      func() time.Time
}

func NewStripeClient(service *CheckoutService, products ProductStore, cfg StripeConfig) *StripeClient {
	if cfg.APIBase == "" {
		cfg.APIBase = stripeAPIBase
	}
	c := &StripeClient{
		service:    service,
		products:   products,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	c.handlers = map[string]func(ctx context.Context, object json.RawMessage) error{
		stripeEventSessionCompleted: c.fulfill,
	}
	return c
}

func (c *StripeClient) System() models.PaymentSystem { return models.PaymentSystemStripe }

type stripeSession struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

type stripeWebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckOut creates a Stripe Checkout session for the product and records the
// checkout. The returned link points at our redirect page, which hands the
// buyer to Stripe's hosted checkout.
func (c *StripeClient) CheckOut(ctx context.Context, orderID, productID int64) (string, error) {
	product, err := c.products.GetProductByID(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("failed to load product %d for stripe checkout: %w", productID, err)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(product.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(product.Price, 10))
	form.Set("line_items[0][price_data][product_data][name]", product.Name)
	if product.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", product.Description)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("client_reference_id", strconv.FormatInt(orderID, 10))
	form.Set("success_url", fmt.Sprintf("%s/billing/stripe_success/%d", c.cfg.SiteURL, orderID))
	form.Set("cancel_url", fmt.Sprintf("%s/billing/stripe_cancel/%d", c.cfg.SiteURL, orderID))

	session, err := c.createSession(ctx, form)
	if err != nil {
		return "", err
	}

	status := session.Status
	if status == "" {
		status = "open"
	}
	if _, err := c.service.RecordCheckout(ctx, orderID, models.PaymentSystemStripe, session.ID, status); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/billing/stripe_redirect/%s", c.cfg.SiteURL, session.ID), nil
}

func (c *StripeClient) createSession(ctx context.Context, form url.Values) (*stripeSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe request: %w", err)
	}
	req.Header.Set("Content-Type", webutil.ContentTypeFormURLEncoded)
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe unreachable: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe session creation returned status %d: %s", resp.StatusCode, respBody)
	}

	var session stripeSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to parse stripe session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("stripe session response has no id")
	}
	return &session, nil
}

// VerifyWebhook validates the Stripe-Signature header: an HMAC-SHA256 of
// "<timestamp>.<payload>" under the endpoint's signing secret, with a bound
// on the timestamp's age.
func (c *StripeClient) VerifyWebhook(r *http.Request, body []byte) bool {
	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := c.now().Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	expected := webutil.SignHMACSHA256([]byte(c.cfg.SigningSecret), []byte(timestamp+"."+string(body)))
	for _, sig := range signatures {
		if webutil.SecureCompare(expected, sig) {
			return true
		}
	}
	return false
}

// HandleEvent dispatches a verified webhook payload by event type. Unknown
// event types are ignored.
func (c *StripeClient) HandleEvent(ctx context.Context, body []byte) error {
	var event stripeWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse stripe webhook: %w", err)
	}
	handler, ok := c.handlers[event.Type]
	if !ok {
		log.Printf("INFO (StripeClient): Ignoring webhook event %q", event.Type)
		return nil
	}
	return handler(ctx, event.Data.Object)
}

// fulfill handles checkout.session.completed. The session id is stored as
// the capture id to keep the audit trail uniform across providers, then the
// checkout is completed.
func (c *StripeClient) fulfill(ctx context.Context, object json.RawMessage) error {
	var session stripeSession
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("failed to parse stripe session object: %w", err)
	}
	if session.ID == "" {
		return fmt.Errorf("stripe completed event has no session id")
	}

	if _, err := c.service.UpdateCapture(ctx, session.ID, session.ID); err != nil {
		var completed *CompletedCheckoutError
		if errors.As(err, &completed) {
			log.Printf("WARN (StripeClient): %v", completed)
			return nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("ERROR (StripeClient): Completed session %s has no checkout", session.ID)
			return nil
		}
		return err
	}

	_, err := c.service.FulfillByTrackingID(ctx, session.ID)
	return err
}
