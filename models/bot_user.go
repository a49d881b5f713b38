package models

import "time"

// BotUser is a messenger account the bot has talked to, scoped to one Bot.
type BotUser struct {
	ID              int64     `json:"id"`
	BotID           int64     `json:"bot_id"`
	MessengerUserID string    `json:"messenger_user_id"`
	Name            string    `json:"name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
