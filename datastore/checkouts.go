package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
)

type CheckoutRepository struct {
	db *sql.DB
}

func NewCheckoutRepository(db *sql.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// CreateCheckout inserts a checkout and fills in its generated id and
// timestamps.
func (r *CheckoutRepository) CreateCheckout(ctx context.Context, checkout *models.Checkout) error {
	query := `
		INSERT INTO checkouts (order_id, system, tracking_id, capture_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		checkout.OrderID, string(checkout.System), checkout.TrackingID,
		nullIfEmpty(checkout.CaptureID), nullIfEmpty(checkout.Status),
	)
	if err := row.Scan(&checkout.ID, &checkout.CreatedAt, &checkout.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}
	return nil
}

// GetCheckoutByTrackingID returns the checkout carrying the provider's
// order/session id.
func (r *CheckoutRepository) GetCheckoutByTrackingID(ctx context.Context, trackingID string) (*models.Checkout, error) {
	return r.getCheckout(ctx, "tracking_id", trackingID)
}

// GetCheckoutByCaptureID returns the checkout carrying the provider's
// fund-capture id.
func (r *CheckoutRepository) GetCheckoutByCaptureID(ctx context.Context, captureID string) (*models.Checkout, error) {
	return r.getCheckout(ctx, "capture_id", captureID)
}

func (r *CheckoutRepository) getCheckout(ctx context.Context, column, value string) (*models.Checkout, error) {
	query := fmt.Sprintf(`
		SELECT id, order_id, system, tracking_id, capture_id, status, created_at, updated_at
		FROM checkouts
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, column)

	var checkout models.Checkout
	var systemStr string
	var captureID, status sql.NullString

	row := r.db.QueryRowContext(ctx, query, value)
	err := row.Scan(
		&checkout.ID, &checkout.OrderID, &systemStr, &checkout.TrackingID,
		&captureID, &status, &checkout.CreatedAt, &checkout.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("checkout not found by %s %q: %w", column, value, err)
		}
		return nil, fmt.Errorf("failed to get checkout by %s: %w", column, err)
	}

	checkout.System = models.PaymentSystem(systemStr)
	checkout.CaptureID = captureID.String
	checkout.Status = status.String
	return &checkout, nil
}

// UpdateCheckoutStatus sets a checkout's provider status. Terminal-state
// enforcement lives in billing.CheckoutService, not here.
func (r *CheckoutRepository) UpdateCheckoutStatus(ctx context.Context, checkoutID int64, status string) error {
	query := `
		UPDATE checkouts
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, checkoutID, status)
	if err != nil {
		return fmt.Errorf("failed to update checkout status for ID %d: %w", checkoutID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("checkout not found for status update: %w", sql.ErrNoRows)
	}
	return nil
}

// UpdateCheckoutCapture stores the provider's capture id on a checkout.
func (r *CheckoutRepository) UpdateCheckoutCapture(ctx context.Context, checkoutID int64, captureID string) error {
	query := `
		UPDATE checkouts
		SET capture_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, checkoutID, captureID)
	if err != nil {
		return fmt.Errorf("failed to update checkout capture for ID %d: %w", checkoutID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("checkout not found for capture update: %w", sql.ErrNoRows)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
