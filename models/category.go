package models

// Category groups products. A nil ParentCategoryID marks a top-level category.
type Category struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ParentCategoryID *int64 `json:"parent_category_id,omitempty"`
}
