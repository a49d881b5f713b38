package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
	"github.com/google/uuid"
)

type OutboundAttemptRepository struct {
	db *sql.DB
}

func NewOutboundAttemptRepository(db *sql.DB) *OutboundAttemptRepository {
	return &OutboundAttemptRepository{db: db}
}

// CreateAttempt records one outbound delivery attempt for audit.
func (r *OutboundAttemptRepository) CreateAttempt(ctx context.Context, attempt *models.OutboundAttempt) error {
	if _, err := uuid.Parse(attempt.ID); err != nil {
		return fmt.Errorf("invalid attempt ID format: %w", err)
	}

	query := `
		INSERT INTO outbound_attempts (id, job_id, attempt, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.JobID, attempt.Attempt, attempt.Status, attempt.ErrorMessage, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbound attempt: %w", err)
	}
	return nil
}
