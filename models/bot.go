package models

import "time"

// BotType identifies the messaging platform a bot is registered on.
type BotType string

const (
	BotTypeOK       BotType = "ok"
	BotTypeJivosite BotType = "jivosite"
)

// Bot represents one registration of the shop bot on a messaging platform.
type Bot struct {
	ID        int64     `json:"id"`
	Type      BotType   `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
