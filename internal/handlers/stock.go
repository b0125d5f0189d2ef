package handlers

import (
	"net/http"

	"github.com/diewo77/go-purchases/httpx"
	"github.com/diewo77/go-purchases/internal/services"
)

// StockHandler serves read-only stock views.
type StockHandler struct {
	Query *services.PurchaseQuery
}

func NewStockHandler(query *services.PurchaseQuery) *StockHandler {
	return &StockHandler{Query: query}
}

// LowStock: GET /products/low-stock
func (h *StockHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.Query.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": products, "total": len(products)})
}

// Movements: GET /products/{id}/movements
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	moves, err := h.Query.Movements(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": moves, "total": len(moves)})
}
