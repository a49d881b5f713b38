// Package events defines the internal, platform-independent representation of
// chat traffic: an EventReceived normalized from an inbound webhook, and an
// EventToSend produced by the dialog for outbound delivery.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreybb/chatshop/models"
)

// CallbackType tags the dialog step a button callback belongs to.
type CallbackType string

const (
	CallbackGreeting CallbackType = "greeting"
	CallbackCategory CallbackType = "category"
	CallbackProduct  CallbackType = "product"
	CallbackOrder    CallbackType = "order"
	CallbackPaypal   CallbackType = "paypal"
	CallbackStripe   CallbackType = "stripe"
	CallbackInvite   CallbackType = "invite"
)

// Callback is the payload carried by an inline button: which dialog step it
// triggers and the entity id (category, product, ...) it refers to.
type Callback struct {
	Type CallbackType `json:"type"`
	ID   int64        `json:"id"`
}

// Encode serializes the callback for embedding in a button payload.
func (c Callback) Encode() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// ParseCallback decodes a button payload back into a Callback.
func ParseCallback(payload string) (Callback, error) {
	var c Callback
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Callback{}, fmt.Errorf("failed to parse callback payload: %w", err)
	}
	if c.Type == "" {
		return Callback{}, fmt.Errorf("callback payload has no type: %q", payload)
	}
	return c, nil
}

// InlineButton is a quick-reply button attached to an outbound message.
// Payload is an encoded Callback.
type InlineButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// EventReceived is the normalized form of an inbound platform webhook.
type EventReceived struct {
	BotID                int64
	ChatIDInMessenger    string
	ChatType             models.ChatType
	ContentType          models.MessageContentType
	Text                 string
	Command              string // encoded Callback, empty for free text
	UserIDInMessenger    string
	UserNameInMessenger  string
	MessageIDInMessenger string
	ReplyIDInMessenger   string
	Timestamp            time.Time
}

// EventToSend is the normalized form of an outbound reply. MessageID is the
// persisted message record's id; it doubles as the delivery job identity.
type EventToSend struct {
	BotID             int64
	ChatIDInMessenger string
	ContentType       models.MessageContentType
	Text              string
	MessageID         int64
	InlineButtons     []InlineButton
}

// NewTextMessage builds a plain-text outbound event.
func NewTextMessage(botID int64, chatIDInMessenger, text string) EventToSend {
	return EventToSend{
		BotID:             botID,
		ChatIDInMessenger: chatIDInMessenger,
		ContentType:       models.ContentTypeText,
		Text:              text,
	}
}

// NewButtonMessage builds an outbound event carrying inline buttons.
func NewButtonMessage(botID int64, chatIDInMessenger, text string, buttons []InlineButton) EventToSend {
	return EventToSend{
		BotID:             botID,
		ChatIDInMessenger: chatIDInMessenger,
		ContentType:       models.ContentTypeInline,
		Text:              text,
		InlineButtons:     buttons,
	}
}

// NewCallbackButton builds an inline button whose payload encodes the given
// dialog callback.
func NewCallbackButton(title string, t CallbackType, id int64) InlineButton {
	return InlineButton{
		Text:    title,
		Payload: Callback{Type: t, ID: id}.Encode(),
	}
}
