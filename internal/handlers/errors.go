package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-purchases/httpx"
	"github.com/diewo77/go-purchases/internal/services"
)

// writeServiceError maps the ledger error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", ve.Violations)
	case errors.Is(err, services.ErrPurchaseNotFound):
		httpx.JSONError(w, http.StatusNotFound, "purchase_not_found", nil)
	case errors.Is(err, services.ErrProductNotFound):
		httpx.JSONError(w, http.StatusNotFound, "product_not_found", nil)
	case errors.Is(err, services.ErrAlreadyAnnulled):
		httpx.JSONError(w, http.StatusConflict, "purchase_already_annulled", nil)
	case errors.Is(err, services.ErrAlreadyActive):
		httpx.JSONError(w, http.StatusConflict, "purchase_already_active", nil)
	case errors.Is(err, services.ErrConflict):
		httpx.JSONError(w, http.StatusConflict, "conflict", nil)
	case errors.Is(err, services.ErrNegativeStock):
		httpx.JSONError(w, http.StatusInternalServerError, "stock_consistency_error", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
