package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/chatshop/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetProductByID returns a product by its primary key.
func (r *ProductRepository) GetProductByID(ctx context.Context, productID int64) (*models.Product, error) {
	query := `
		SELECT id, name, description, price, currency, image_url, is_active, created_at
		FROM products
		WHERE id = $1
	`
	var p models.Product
	var imageURL sql.NullString

	row := r.db.QueryRowContext(ctx, query, productID)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &imageURL, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get product by ID: %w", err)
	}
	p.ImageURL = imageURL.String
	return &p, nil
}

// GetProductsByCategory returns the active products assigned to a category.
func (r *ProductRepository) GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	query := `
		SELECT p.id, p.name, p.description, p.price, p.currency, p.image_url, p.is_active, p.created_at
		FROM products p
		JOIN product_categories pc ON pc.product_id = p.id
		WHERE pc.category_id = $1 AND p.is_active
		ORDER BY p.name
	`
	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var imageURL sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &imageURL, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		p.ImageURL = imageURL.String
		products = append(products, p)
	}
	return products, rows.Err()
}
