package routehandlers

import (
	"log"
	"net/http"

	"github.com/coreybb/chatshop/datastore"
	"github.com/coreybb/chatshop/webutil"
)

type CatalogHandler struct {
	Categories *datastore.CategoryRepository
	Products   *datastore.ProductRepository
}

func NewCatalogHandler(categories *datastore.CategoryRepository, products *datastore.ProductRepository) *CatalogHandler {
	return &CatalogHandler{Categories: categories, Products: products}
}

// HandleGetCategories lists the top-level catalog categories.
func (h *CatalogHandler) HandleGetCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.Categories.GetTopCategories(r.Context())
	if err != nil {
		log.Printf("ERROR: Failed to list categories: %v", err)
		return webutil.ErrInternalServerWrap("Failed to list categories", err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, categories)
	return nil
}

// HandleGetCategoryProducts lists a category's active products.
func (h *CatalogHandler) HandleGetCategoryProducts(w http.ResponseWriter, r *http.Request) error {
	categoryID, err := parseIDParam(r, "id")
	if err != nil {
		return webutil.ErrBadRequest("Invalid category id")
	}

	if _, err := h.Categories.GetCategoryByID(r.Context(), categoryID); err != nil {
		return err
	}

	products, err := h.Products.GetProductsByCategory(r.Context(), categoryID)
	if err != nil {
		log.Printf("ERROR: Failed to list products for category %d: %v", categoryID, err)
		return webutil.ErrInternalServerWrap("Failed to list products", err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, products)
	return nil
}

// HandleGetProduct returns one product.
func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) error {
	productID, err := parseIDParam(r, "id")
	if err != nil {
		return webutil.ErrBadRequest("Invalid product id")
	}

	product, err := h.Products.GetProductByID(r.Context(), productID)
	if err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, product)
	return nil
}
