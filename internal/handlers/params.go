package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-purchases/internal/services"
	"github.com/diewo77/go-purchases/validation"
)

func pathID(r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// parseDate accepts a plain date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

// purchaseFilter reads the list/export query string.
func purchaseFilter(r *http.Request, v validation.Violations) services.PurchaseFilter {
	q := r.URL.Query()
	var f services.PurchaseFilter
	if s := q.Get("supplier_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			v["supplier_id"] = "invalid"
		} else {
			id := uint(n)
			f.SupplierID = &id
		}
	}
	if s := q.Get("active"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			v["active"] = "invalid"
		} else {
			f.Active = &b
		}
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(key); s != "" {
			t, err := parseDate(s)
			if err != nil {
				v[key] = "invalid_date"
				continue
			}
			if key == "to" && len(strings.TrimSpace(s)) == len("2006-01-02") {
				// a plain "to" date includes the whole day
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			*dst = &t
		}
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			f.Offset = n
		}
	}
	if s := q.Get("page"); s != "" && f.Offset == 0 {
		if n, err := strconv.Atoi(s); err == nil && n > 1 {
			limit := f.Limit
			if limit == 0 {
				limit = 50
			}
			f.Offset = (n - 1) * limit
		}
	}
	return f
}
