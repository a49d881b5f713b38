package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
)

type BotRepository struct {
	db *sql.DB
}

func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

// GetBotByType returns the bot registered for the given platform.
func (r *BotRepository) GetBotByType(ctx context.Context, botType models.BotType) (*models.Bot, error) {
	query := `
		SELECT id, bot_type, name, created_at
		FROM bots
		WHERE bot_type = $1
	`
	var bot models.Bot
	var typeStr string

	row := r.db.QueryRowContext(ctx, query, string(botType))
	if err := row.Scan(&bot.ID, &typeStr, &bot.Name, &bot.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("bot not found for type %s: %w", botType, err)
		}
		return nil, fmt.Errorf("failed to get bot by type: %w", err)
	}
	bot.Type = models.BotType(typeStr)

	return &bot, nil
}

// GetBotByID returns a bot by its primary key.
func (r *BotRepository) GetBotByID(ctx context.Context, botID int64) (*models.Bot, error) {
	query := `
		SELECT id, bot_type, name, created_at
		FROM bots
		WHERE id = $1
	`
	var bot models.Bot
	var typeStr string

	row := r.db.QueryRowContext(ctx, query, botID)
	if err := row.Scan(&bot.ID, &typeStr, &bot.Name, &bot.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("bot not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get bot by ID: %w", err)
	}
	bot.Type = models.BotType(typeStr)

	return &bot, nil
}
