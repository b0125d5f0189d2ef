package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/go-purchases/httpx"
	"github.com/diewo77/go-purchases/internal/services"
	"github.com/diewo77/go-purchases/validation"
	"github.com/shopspring/decimal"
)

// PurchaseHandler exposes the purchase ledger as a JSON API.
type PurchaseHandler struct {
	Ledger *services.PurchaseLedger
	Query  *services.PurchaseQuery
}

func NewPurchaseHandler(ledger *services.PurchaseLedger, query *services.PurchaseQuery) *PurchaseHandler {
	return &PurchaseHandler{Ledger: ledger, Query: query}
}

type createPurchaseRequest struct {
	SupplierID     uint                         `json:"supplier_id"`
	Date           string                       `json:"date,omitempty"`
	Total          *decimal.Decimal             `json:"total,omitempty"`
	Tax            *decimal.Decimal             `json:"tax,omitempty"`
	Active         *bool                        `json:"active,omitempty"`
	IdempotencyKey string                       `json:"idempotency_key,omitempty"`
	Lines          []services.PurchaseLineInput `json:"lines"`
}

type updatePurchaseRequest struct {
	SupplierID *uint  `json:"supplier_id,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Create: POST /purchases
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !httpx.IsJSON(r) {
		httpx.JSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", nil)
		return
	}
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in := services.CreatePurchaseInput{
		SupplierID:     req.SupplierID,
		Total:          req.Total,
		Tax:            req.Tax,
		Active:         req.Active,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          req.Lines,
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"date": "invalid_date"})
			return
		}
		in.Date = &d
	}

	p, err := h.Ledger.CreatePurchase(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// List: GET /purchases?supplier_id=&active=&from=&to=&limit=&offset=
func (h *PurchaseHandler) List(w http.ResponseWriter, r *http.Request) {
	v := make(validation.Violations)
	f := purchaseFilter(r, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	page, err := h.Query.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// View: GET /purchases/{id}
func (h *PurchaseHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	p, err := h.Query.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Update: POST /purchases/{id} changes date and/or supplier only.
func (h *PurchaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if !httpx.IsJSON(r) {
		httpx.JSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", nil)
		return
	}
	var req updatePurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in := services.UpdatePurchaseInput{SupplierID: req.SupplierID}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"date": "invalid_date"})
			return
		}
		in.Date = &d
	}
	p, err := h.Ledger.UpdatePurchaseHeader(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Annul: POST /purchases/{id}/annul
func (h *PurchaseHandler) Annul(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	p, err := h.Ledger.AnnulPurchase(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Reactivate: POST /purchases/{id}/reactivate
func (h *PurchaseHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	p, err := h.Ledger.ReactivatePurchase(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Export: GET /purchases/export.xlsx with the List filters.
func (h *PurchaseHandler) Export(w http.ResponseWriter, r *http.Request) {
	v := make(validation.Violations)
	f := purchaseFilter(r, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=purchases-"+time.Now().UTC().Format("20060102")+".xlsx")
	if err := h.Query.ExportXLSX(r.Context(), f, w); err != nil {
		w.Header().Del("Content-Disposition")
		writeServiceError(w, err)
	}
}
