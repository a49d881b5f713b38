package routehandlers

import (
	"net/http"

	"github.com/coreybb/chatshop/datastore"
	"github.com/coreybb/chatshop/webutil"
)

type OrderHandler struct {
	Repo *datastore.OrderRepository
}

func NewOrderHandler(repo *datastore.OrderRepository) *OrderHandler {
	return &OrderHandler{Repo: repo}
}

// HandleGetOrder returns one order with its payment state.
func (h *OrderHandler) HandleGetOrder(w http.ResponseWriter, r *http.Request) error {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		return webutil.ErrBadRequest("Invalid order id")
	}

	order, err := h.Repo.GetOrder(r.Context(), orderID)
	if err != nil {
		return err
	}
	webutil.RespondWithJSON(w, http.StatusOK, order)
	return nil
}
