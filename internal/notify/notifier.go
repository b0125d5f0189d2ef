// Package notify delivers low-stock alerts to the outside world.
// Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert describes a product whose stock reached its minimum.
type Alert struct {
	EventID       string    `json:"event_id"`
	ProductID     uint      `json:"product_id"`
	ProductCode   string    `json:"product_code"`
	ProductName   string    `json:"product_name"`
	StockQuantity int       `json:"stock_quantity"`
	StockMinimum  int       `json:"stock_minimum"`
	Reason        string    `json:"reason"`
	RaisedAt      time.Time `json:"raised_at"`
}

// NewAlert stamps a fresh event id and timestamp.
func NewAlert(productID uint, code, name string, quantity, minimum int, reason string) Alert {
	return Alert{
		EventID:       uuid.NewString(),
		ProductID:     productID,
		ProductCode:   code,
		ProductName:   name,
		StockQuantity: quantity,
		StockMinimum:  minimum,
		Reason:        reason,
		RaisedAt:      time.Now().UTC(),
	}
}

// String is the one-line human summary used in log output.
func (a Alert) String() string {
	return fmt.Sprintf("low stock: product %d (%s) has %d, minimum %d: %s",
		a.ProductID, a.ProductCode, a.StockQuantity, a.StockMinimum, a.Reason)
}

// Notifier sends an alert somewhere.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
