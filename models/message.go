package models

import "time"

// MessageStatus defines the set of allowed statuses for a Message.
type MessageStatus string

const (
	MessageStatusNew       MessageStatus = "new"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDelivered MessageStatus = "delivered"
)

// MessageDirection distinguishes inbound from outbound messages.
type MessageDirection string

const (
	DirectionReceived MessageDirection = "received"
	DirectionSent     MessageDirection = "sent"
	DirectionSystem   MessageDirection = "system"
)

// MessageContentType describes what a message carries.
type MessageContentType string

const (
	ContentTypeText    MessageContentType = "text"
	ContentTypeCommand MessageContentType = "command"
	ContentTypeInline  MessageContentType = "inline"
	ContentTypeSystem  MessageContentType = "system"
)

// Message is one chat message, inbound or outbound. Outbound messages start
// as "new" and move to "sent" once the platform acknowledges delivery, or
// "failed" when delivery is abandoned.
type Message struct {
	ID            int64              `json:"id"`
	BotID         int64              `json:"bot_id"`
	BotUserID     int64              `json:"bot_user_id"`
	ChatID        int64              `json:"chat_id"`
	Direction     MessageDirection   `json:"direction"`
	ContentType   MessageContentType `json:"content_type"`
	IDInMessenger string             `json:"id_in_messenger,omitempty"`
	Text          string             `json:"text"`
	Status        MessageStatus      `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}
