package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coreybb/chatshop/models"
)

const (
	paypalSandboxAPIBase        = "https://api-m.sandbox.paypal.com"
	paypalDefaultApprovePattern = "https://www.sandbox.paypal.com/checkoutnow?token=%s"

	paypalEventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	paypalEventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"

	paypalStatusCreated  = "CREATED"
	paypalStatusApproved = "APPROVED"
	paypalStatusCaptured = "CAPTURED"
)

// PaypalConfig carries the PayPal REST credentials and endpoints.
type PaypalConfig struct {
	ClientID       string
	ClientSecret   string
	WebhookID      string
	APIBase        string // empty selects the sandbox
	ApprovePattern string // format: order id
}

// PaypalClient implements PaymentClient for PayPal Checkout orders.
//
// The provider's lifecycle maps onto the checkout state machine as: order
// created (CREATED), buyer approves (CHECKOUT.ORDER.APPROVED webhook ->
// APPROVED, then we capture -> CAPTURED), funds captured
// (PAYMENT.CAPTURE.COMPLETED webhook -> COMPLETED).
type PaypalClient struct {
	service    *CheckoutService
	products   ProductStore
	cfg        PaypalConfig
	httpClient *http.Client

	handlers map[string]func(ctx context.Context, resource json.RawMessage) error

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPaypalClient(service *CheckoutService, products ProductStore, cfg PaypalConfig) *PaypalClient {
	if cfg.APIBase == "" {
		cfg.APIBase = paypalSandboxAPIBase
	}
	if cfg.ApprovePattern == "" {
		cfg.ApprovePattern = paypalDefaultApprovePattern
	}
	c := &PaypalClient{
		service:    service,
		products:   products,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	c.handlers = map[string]func(ctx context.Context, resource json.RawMessage) error{
		paypalEventOrderApproved:    c.capture,
		paypalEventCaptureCompleted: c.fulfill,
	}
	return c
}

func (c *PaypalClient) System() models.PaymentSystem { return models.PaymentSystemPaypal }

// PayPal wire types.

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalItem struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	UnitAmount  paypalAmount `json:"unit_amount"`
	Quantity    string       `json:"quantity"`
	Category    string       `json:"category"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
	Items       []paypalItem `json:"items,omitempty"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ShippingPreference string `json:"shipping_preference"`
		UserAction         string `json:"user_action"`
	} `json:"application_context"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalOrderResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments *struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalWebhookEvent struct {
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// CheckOut creates a PayPal order for the product and records the checkout.
// It returns the link the buyer follows to approve payment.
func (c *PaypalClient) CheckOut(ctx context.Context, orderID, productID int64) (string, error) {
	product, err := c.products.GetProductByID(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("failed to load product %d for paypal checkout: %w", productID, err)
	}

	amount := paypalAmount{
		CurrencyCode: product.Currency,
		Value:        minorToDecimal(product.Price),
	}
	body := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: fmt.Sprintf("%d", orderID),
			Description: truncate(product.Description, 127),
			Amount:      amount,
			Items: []paypalItem{{
				Name:        product.Name,
				Description: truncate(product.Description, 127),
				UnitAmount:  amount,
				Quantity:    "1",
				Category:    "PHYSICAL_GOODS",
			}},
		}},
	}
	body.ApplicationContext.ShippingPreference = "GET_FROM_FILE"
	body.ApplicationContext.UserAction = "PAY_NOW"

	var created paypalOrderResponse
	if err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &created); err != nil {
		return "", fmt.Errorf("paypal order creation failed: %w", err)
	}
	if created.Status != paypalStatusCreated || created.ID == "" {
		return "", fmt.Errorf("paypal order creation returned status %q", created.Status)
	}

	if _, err := c.service.RecordCheckout(ctx, orderID, models.PaymentSystemPaypal, created.ID, created.Status); err != nil {
		return "", err
	}

	for _, link := range created.Links {
		if link.Rel == "approve" {
			return link.Href, nil
		}
	}
	return fmt.Sprintf(c.cfg.ApprovePattern, created.ID), nil
}

// VerifyWebhook asks PayPal's verification API whether the webhook signature
// headers match the payload and our registered webhook id.
func (c *PaypalClient) VerifyWebhook(r *http.Request, body []byte) bool {
	verification := map[string]any{
		"auth_algo":         r.Header.Get("Paypal-Auth-Algo"),
		"cert_url":          r.Header.Get("Paypal-Cert-Url"),
		"transmission_id":   r.Header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  r.Header.Get("Paypal-Transmission-Sig"),
		"transmission_time": r.Header.Get("Paypal-Transmission-Time"),
		"webhook_id":        c.cfg.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.call(r.Context(), http.MethodPost, "/v1/notifications/verify-webhook-signature", verification, &result); err != nil {
		log.Printf("ERROR (PaypalClient): Webhook verification call failed: %v", err)
		return false
	}
	return result.VerificationStatus == "SUCCESS"
}

// HandleEvent dispatches a verified webhook payload by event type. Unknown
// event types are ignored.
func (c *PaypalClient) HandleEvent(ctx context.Context, body []byte) error {
	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse paypal webhook: %w", err)
	}
	handler, ok := c.handlers[event.EventType]
	if !ok {
		log.Printf("INFO (PaypalClient): Ignoring webhook event %q", event.EventType)
		return nil
	}
	return handler(ctx, event.Resource)
}

// capture handles CHECKOUT.ORDER.APPROVED: it marks the checkout approved
// and captures the funds. After a capture PayPal re-sends the approved event
// with payment details attached; that echo is skipped.
func (c *PaypalClient) capture(ctx context.Context, resource json.RawMessage) error {
	var order paypalOrderResponse
	if err := json.Unmarshal(resource, &order); err != nil {
		return fmt.Errorf("failed to parse paypal order resource: %w", err)
	}
	if order.ID == "" {
		return fmt.Errorf("paypal approved event has no order id")
	}
	if len(order.PurchaseUnits) > 0 && order.PurchaseUnits[0].Payments != nil {
		return nil
	}

	if _, err := c.service.UpdateCheckout(ctx, order.ID, paypalStatusApproved); err != nil {
		var completed *CompletedCheckoutError
		if errors.As(err, &completed) {
			log.Printf("WARN (PaypalClient): %v", completed)
			return nil
		}
		return err
	}

	var captured paypalOrderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(order.ID))
	if err := c.call(ctx, http.MethodPost, path, struct{}{}, &captured); err != nil {
		return fmt.Errorf("paypal capture of order %s failed: %w", order.ID, err)
	}

	captureID := ""
	if len(captured.PurchaseUnits) > 0 && captured.PurchaseUnits[0].Payments != nil &&
		len(captured.PurchaseUnits[0].Payments.Captures) > 0 {
		captureID = captured.PurchaseUnits[0].Payments.Captures[0].ID
	}
	if captureID == "" {
		return fmt.Errorf("paypal capture of order %s returned no capture id", order.ID)
	}

	if _, err := c.service.UpdateCapture(ctx, order.ID, captureID); err != nil {
		return err
	}
	_, err := c.service.UpdateCheckout(ctx, order.ID, paypalStatusCaptured)
	return err
}

// fulfill handles PAYMENT.CAPTURE.COMPLETED: the resource id is the capture
// id stored during the capture step.
func (c *PaypalClient) fulfill(ctx context.Context, resource json.RawMessage) error {
	var capture struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resource, &capture); err != nil {
		return fmt.Errorf("failed to parse paypal capture resource: %w", err)
	}
	if capture.ID == "" {
		return fmt.Errorf("paypal completed event has no capture id")
	}
	_, err := c.service.FulfillByCaptureID(ctx, capture.ID)
	return err
}

// call performs an authenticated JSON request against the PayPal REST API.
func (c *PaypalClient) call(ctx context.Context, method, path string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal paypal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal unreachable: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("paypal returned status %d: %s", resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse paypal response: %w", err)
		}
	}
	return nil
}

// token returns a cached OAuth2 client-credentials token, refreshing it
// shortly before expiry.
func (c *PaypalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create paypal token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token request returned status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &token); err != nil {
		return "", fmt.Errorf("failed to parse paypal token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("paypal token response has no access token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

// minorToDecimal renders a minor-unit amount as a decimal money string.
func minorToDecimal(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
