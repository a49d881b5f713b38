package models

import "time"

// ChatType defines the set of allowed chat kinds.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

// Chat is one conversation between a bot and a messenger user. The
// denormalized last-message fields back the chat list API.
type Chat struct {
	ID              int64      `json:"id"`
	BotID           int64      `json:"bot_id"`
	BotUserID       int64      `json:"bot_user_id"`
	IDInMessenger   string     `json:"id_in_messenger"`
	Type            ChatType   `json:"type"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
