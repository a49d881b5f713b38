// Package clients contains the messaging-platform adapters. Each adapter
// translates between a platform's wire format and the internal event
// representation and pushes outbound messages through the delivery queue.
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

// PlatformClient is the adapter interface for messaging platforms.
// Implement this to add a new platform (OK, JivoSite, ...).
type PlatformClient interface {
	// Platform returns the bot type this client handles.
	Platform() models.BotType
	// ParseWebhook validates and deserializes an inbound webhook into the
	// internal received-event shape.
	ParseWebhook(r *http.Request, body []byte) (*events.EventReceived, error)
	// VerifyRequest authenticates the webhook sender.
	VerifyRequest(r *http.Request) bool
	// SendMessage converts the command to the platform wire format and
	// enqueues it for retried delivery. It returns once the job is
	// scheduled, not once the message is delivered.
	SendMessage(ctx context.Context, command events.EventToSend) error
}

// MessageMarker updates the delivery status of a persisted message record.
// Implemented by datastore.MessageRepository.
type MessageMarker interface {
	SetSent(ctx context.Context, messageID int64) error
	SetFailed(ctx context.Context, messageID int64) error
}

// PlatformError is an application-level error embedded in an otherwise
// successful platform response. It is a terminal delivery failure.
type PlatformError struct {
	Platform models.BotType
	Code     string
	Message  string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s error: code %s -> %s", e.Platform, e.Code, e.Message)
}

// Registry maps bot types to their platform clients.
type Registry struct {
	byType map[models.BotType]PlatformClient
}

func NewRegistry(clients ...PlatformClient) *Registry {
	byType := make(map[models.BotType]PlatformClient, len(clients))
	for _, c := range clients {
		byType[c.Platform()] = c
	}
	return &Registry{byType: byType}
}

// ForPlatform returns the client registered for a bot type.
func (r *Registry) ForPlatform(botType models.BotType) (PlatformClient, error) {
	client, ok := r.byType[botType]
	if !ok {
		return nil, fmt.Errorf("no platform client registered for type %q", botType)
	}
	return client, nil
}
