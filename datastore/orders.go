package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreybb/chatshop/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts a new order and fills in its generated id and creation
// time. New orders always start in status "new".
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	order.Status = models.OrderStatusNew
	query := `
		INSERT INTO orders (chat_id, product_id, total, status, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	row := r.db.QueryRowContext(ctx, query,
		order.ChatID, order.ProductID, order.Total, string(order.Status), order.Description,
	)
	if err := row.Scan(&order.ID, &order.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder returns an order by its primary key.
func (r *OrderRepository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	query := `
		SELECT id, chat_id, product_id, total, status, description, paid_at, canceled_at, created_at
		FROM orders
		WHERE id = $1
	`
	var order models.Order
	var statusStr string
	var description sql.NullString
	var paidAt, canceledAt sql.NullTime

	row := r.db.QueryRowContext(ctx, query, orderID)
	err := row.Scan(
		&order.ID, &order.ChatID, &order.ProductID, &order.Total,
		&statusStr, &description, &paidAt, &canceledAt, &order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}

	order.Status = models.OrderStatus(statusStr)
	order.Description = description.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if canceledAt.Valid {
		order.CanceledAt = &canceledAt.Time
	}
	return &order, nil
}

// UpdateOrderStatus moves an order to the given status, stamping paid_at or
// canceled_at for the corresponding terminal transitions.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	now := time.Now().UTC()
	var paidAt, canceledAt *time.Time
	switch status {
	case models.OrderStatusComplete:
		paidAt = &now
	case models.OrderStatusCanceled:
		canceledAt = &now
	}

	query := `
		UPDATE orders
		SET status = $2, paid_at = COALESCE($3, paid_at), canceled_at = COALESCE($4, canceled_at)
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, orderID, string(status), paidAt, canceledAt)
	if err != nil {
		return fmt.Errorf("failed to update order status for ID %d: %w", orderID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("order not found for status update: %w", sql.ErrNoRows)
	}
	return nil
}
