// Package webhooks terminates the inbound HTTP surface of the bot: the
// messaging platforms' event webhooks and the payment providers' billing
// webhooks.
package webhooks

import (
	"io"
	"log"
	"net/http"

	"github.com/coreybb/chatshop/clients"
	"github.com/coreybb/chatshop/dialog"
	"github.com/coreybb/chatshop/models"
	"github.com/coreybb/chatshop/webutil"
)

// maxWebhookBody caps how much of a webhook request we are willing to read.
const maxWebhookBody = 1 << 20

// PlatformHandler serves the messaging platforms' webhooks. A request is
// first authenticated by the platform client, then parsed and handed to the
// dialog service. Verification failures are rejected; everything after
// verification is acknowledged with 200 so the platform does not retry
// events we cannot use.
type PlatformHandler struct {
	registry *clients.Registry
	service  *dialog.Service
}

func NewPlatformHandler(registry *clients.Registry, service *dialog.Service) *PlatformHandler {
	return &PlatformHandler{registry: registry, service: service}
}

// Handle returns the webhook endpoint for one platform.
func (h *PlatformHandler) Handle(botType models.BotType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := h.registry.ForPlatform(botType)
		if err != nil {
			log.Printf("ERROR (PlatformHandler): %v", err)
			webutil.RespondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if !client.VerifyRequest(r) {
			log.Printf("WARN (PlatformHandler): Rejected unverified %s webhook from %s", botType, r.RemoteAddr)
			webutil.RespondWithError(w, http.StatusForbidden, "Forbidden")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			log.Printf("WARN (PlatformHandler): Failed to read %s webhook body: %v", botType, err)
			webutil.RespondWithError(w, http.StatusBadRequest, "Bad Request")
			return
		}

		event, err := client.ParseWebhook(r, body)
		if err != nil {
			// Unusable payloads are dropped, not retried.
			log.Printf("WARN (PlatformHandler): Dropping unparsable %s webhook: %v", botType, err)
			webutil.RespondWithText(w, http.StatusOK, "OK")
			return
		}

		if err := h.service.HandleEvent(r.Context(), client, event); err != nil {
			log.Printf("ERROR (PlatformHandler): Failed to handle %s event: %v", botType, err)
		}
		webutil.RespondWithText(w, http.StatusOK, "OK")
	}
}
