package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetTopCategories returns categories without a parent.
func (r *CategoryRepository) GetTopCategories(ctx context.Context) ([]models.Category, error) {
	query := `
		SELECT id, name, parent_category_id
		FROM categories
		WHERE parent_category_id IS NULL
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// GetCategoryByID returns a category by its primary key.
func (r *CategoryRepository) GetCategoryByID(ctx context.Context, categoryID int64) (*models.Category, error) {
	query := `
		SELECT id, name, parent_category_id
		FROM categories
		WHERE id = $1
	`
	var c models.Category
	var parent sql.NullInt64

	row := r.db.QueryRowContext(ctx, query, categoryID)
	if err := row.Scan(&c.ID, &c.Name, &parent); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("category not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get category by ID: %w", err)
	}
	if parent.Valid {
		c.ParentCategoryID = &parent.Int64
	}
	return &c, nil
}

func scanCategories(rows *sql.Rows) ([]models.Category, error) {
	var categories []models.Category
	for rows.Next() {
		var c models.Category
		var parent sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		if parent.Valid {
			c.ParentCategoryID = &parent.Int64
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
