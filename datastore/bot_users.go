package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
)

type BotUserRepository struct {
	db *sql.DB
}

func NewBotUserRepository(db *sql.DB) *BotUserRepository {
	return &BotUserRepository{db: db}
}

// GetOrCreateUser returns the user record for (bot, messenger user id),
// creating it with the given display name on first contact. The name is only
// written on creation; later renames on the platform are not tracked.
func (r *BotUserRepository) GetOrCreateUser(ctx context.Context, botID int64, messengerUserID, name string) (*models.BotUser, error) {
	query := `
		INSERT INTO bot_users (bot_id, messenger_user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (bot_id, messenger_user_id) DO UPDATE SET bot_id = EXCLUDED.bot_id
		RETURNING id, bot_id, messenger_user_id, name, created_at
	`
	var user models.BotUser
	var storedName sql.NullString

	row := r.db.QueryRowContext(ctx, query, botID, messengerUserID, name)
	if err := row.Scan(&user.ID, &user.BotID, &user.MessengerUserID, &storedName, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to get or create bot user: %w", err)
	}
	user.Name = storedName.String

	return &user, nil
}
