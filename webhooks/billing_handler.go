package webhooks

import (
	"html/template"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coreybb/chatshop/billing"
	"github.com/coreybb/chatshop/models"
	"github.com/coreybb/chatshop/webutil"
)

// BillingHandler serves the payment providers' webhooks plus the small HTML
// surface around Stripe checkout: the redirect page that hands the buyer to
// Stripe's hosted form and the post-payment result pages.
type BillingHandler struct {
	payments        *billing.PaymentRegistry
	orders          billing.OrderStore
	stripePublicKey string
}

func NewBillingHandler(payments *billing.PaymentRegistry, orders billing.OrderStore, stripePublicKey string) *BillingHandler {
	return &BillingHandler{
		payments:        payments,
		orders:          orders,
		stripePublicKey: stripePublicKey,
	}
}

// Handle returns the webhook endpoint for one payment system. A request that
// fails signature verification gets 400; a verified event is always
// acknowledged with 200, even when reconciliation fails, because the
// provider's retries cannot fix our internal errors.
func (h *BillingHandler) Handle(system models.PaymentSystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := h.payments.ForSystem(system)
		if err != nil {
			log.Printf("ERROR (BillingHandler): %v", err)
			webutil.RespondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			log.Printf("WARN (BillingHandler): Failed to read %s webhook body: %v", system, err)
			webutil.RespondWithError(w, http.StatusBadRequest, "Bad Request")
			return
		}

		if !client.VerifyWebhook(r, body) {
			log.Printf("WARN (BillingHandler): Rejected unverified %s webhook from %s", system, r.RemoteAddr)
			webutil.RespondWithError(w, http.StatusBadRequest, "Bad Request")
			return
		}

		if err := client.HandleEvent(r.Context(), body); err != nil {
			log.Printf("ERROR (BillingHandler): Failed to process %s event: %v", system, err)
		}
		webutil.RespondWithText(w, http.StatusOK, "OK")
	}
}

var stripeRedirectTemplate = template.Must(template.New("stripe_redirect").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Redirecting to checkout...</title>
  <script src="https://js.stripe.com/v3/"></script>
</head>
<body>
  <p>Redirecting you to the payment page...</p>
  <script>
    var stripe = Stripe({{.PublicKey}});
    stripe.redirectToCheckout({sessionId: {{.SessionID}}});
  </script>
</body>
</html>
`))

var stripeResultTemplate = template.Must(template.New("stripe_result").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Body}}</p>
</body>
</html>
`))

// StripeRedirect hands the buyer from the chat's payment link to Stripe's
// hosted checkout via Stripe.js.
func (h *BillingHandler) StripeRedirect(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		webutil.RespondWithError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeHTMLUTF8)
	err := stripeRedirectTemplate.Execute(w, struct {
		PublicKey string
		SessionID string
	}{h.stripePublicKey, sessionID})
	if err != nil {
		log.Printf("ERROR (BillingHandler): Failed to render stripe redirect page: %v", err)
	}
}

// StripeSuccess is the page Stripe sends the buyer back to after payment.
func (h *BillingHandler) StripeSuccess(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		webutil.RespondWithError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	body := "Your payment went through. You can close this page and return to the chat."
	if order, err := h.orders.GetOrder(r.Context(), orderID); err == nil {
		body = "Order #" + strconv.FormatInt(order.ID, 10) + " has been paid. You can close this page and return to the chat."
	}

	h.renderResult(w, "Payment successful", body)
}

// StripeCancel is the page Stripe sends the buyer back to on abort.
func (h *BillingHandler) StripeCancel(w http.ResponseWriter, r *http.Request) {
	h.renderResult(w, "Payment canceled", "The payment was not completed. You can return to the chat and try again.")
}

func (h *BillingHandler) renderResult(w http.ResponseWriter, title, body string) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeHTMLUTF8)
	err := stripeResultTemplate.Execute(w, struct {
		Title string
		Body  string
	}{title, body})
	if err != nil {
		log.Printf("ERROR (BillingHandler): Failed to render result page: %v", err)
	}
}
