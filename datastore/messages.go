package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/coreybb/chatshop/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage inserts a message and fills in its generated id and creation
// time.
func (r *MessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (bot_id, bot_user_id, chat_id, direction, content_type, id_in_messenger, text, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	row := r.db.QueryRowContext(ctx, query,
		message.BotID, message.BotUserID, message.ChatID, string(message.Direction),
		string(message.ContentType), message.IDInMessenger, message.Text, string(message.Status),
	)
	if err := row.Scan(&message.ID, &message.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// SetStatus updates a message's delivery status.
func (r *MessageRepository) SetStatus(ctx context.Context, messageID int64, status models.MessageStatus) error {
	query := `
		UPDATE messages
		SET status = $2
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, messageID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update message status for ID %d: %w", messageID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Printf("WARN: Could not get rows affected for message status update %d: %v", messageID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("message not found for status update: %w", sql.ErrNoRows)
	}
	return nil
}

// SetSent marks a message as acknowledged by the platform.
func (r *MessageRepository) SetSent(ctx context.Context, messageID int64) error {
	return r.SetStatus(ctx, messageID, models.MessageStatusSent)
}

// SetFailed marks a message whose delivery was abandoned.
func (r *MessageRepository) SetFailed(ctx context.Context, messageID int64) error {
	return r.SetStatus(ctx, messageID, models.MessageStatusFailed)
}

// GetChatMessages returns a chat's messages in chronological order.
func (r *MessageRepository) GetChatMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	query := `
		SELECT id, bot_id, bot_user_id, chat_id, direction, content_type, id_in_messenger, text, status, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var direction, contentType, status string
		var idInMessenger sql.NullString

		err := rows.Scan(
			&m.ID, &m.BotID, &m.BotUserID, &m.ChatID, &direction,
			&contentType, &idInMessenger, &m.Text, &status, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Direction = models.MessageDirection(direction)
		m.ContentType = models.MessageContentType(contentType)
		m.IDInMessenger = idInMessenger.String
		m.Status = models.MessageStatus(status)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
