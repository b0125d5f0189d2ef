package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	JSONError(w, http.StatusConflict, "purchase_already_annulled", map[string]string{"id": "3"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "purchase_already_annulled" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestJSONNilPayload(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, nil)
	if got := w.Body.String(); got != "null" {
		t.Fatalf("body = %q, want null", got)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		SupplierID uint `json:"supplier_id"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"supplier_id":1,"bogus":true}`))
	r.Header.Set("Content-Type", "application/json")
	if !IsJSON(r) {
		t.Fatalf("IsJSON should be true")
	}
	if err := DecodeJSON(r, &dst); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}
