package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreybb/chatshop/models"
)

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetOrCreateChat returns the chat for (bot, messenger chat id), creating it
// on first contact.
func (r *ChatRepository) GetOrCreateChat(ctx context.Context, botID int64, idInMessenger string, chatType models.ChatType, botUserID int64) (*models.Chat, error) {
	query := `
		INSERT INTO chats (bot_id, id_in_messenger, chat_type, bot_user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bot_id, id_in_messenger) DO UPDATE SET bot_id = EXCLUDED.bot_id
		RETURNING id, bot_id, bot_user_id, id_in_messenger, chat_type, last_message_text, last_message_time, created_at
	`
	row := r.db.QueryRowContext(ctx, query, botID, idInMessenger, string(chatType), botUserID)
	chat, err := scanChat(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create chat: %w", err)
	}
	return chat, nil
}

// GetChatByID returns a chat by its primary key.
func (r *ChatRepository) GetChatByID(ctx context.Context, chatID int64) (*models.Chat, error) {
	query := `
		SELECT id, bot_id, bot_user_id, id_in_messenger, chat_type, last_message_text, last_message_time, created_at
		FROM chats
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, chatID)
	chat, err := scanChat(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chat not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get chat by ID: %w", err)
	}
	return chat, nil
}

// TouchLastMessage updates the denormalized last-message fields backing the
// chat list.
func (r *ChatRepository) TouchLastMessage(ctx context.Context, chatID int64, text string, at time.Time) error {
	query := `
		UPDATE chats
		SET last_message_text = $2, last_message_time = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, chatID, text, at); err != nil {
		return fmt.Errorf("failed to touch chat %d: %w", chatID, err)
	}
	return nil
}

// GetAllChats returns every chat, most recently active first.
func (r *ChatRepository) GetAllChats(ctx context.Context) ([]models.Chat, error) {
	query := `
		SELECT id, bot_id, bot_user_id, id_in_messenger, chat_type, last_message_text, last_message_time, created_at
		FROM chats
		ORDER BY last_message_time DESC NULLS LAST
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var chat models.Chat
	var typeStr string
	var lastText sql.NullString
	var lastTime sql.NullTime

	err := row.Scan(
		&chat.ID, &chat.BotID, &chat.BotUserID, &chat.IDInMessenger,
		&typeStr, &lastText, &lastTime, &chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	chat.Type = models.ChatType(typeStr)
	chat.LastMessageText = lastText.String
	if lastTime.Valid {
		chat.LastMessageTime = &lastTime.Time
	}
	return &chat, nil
}
