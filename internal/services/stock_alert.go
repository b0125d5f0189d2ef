package services

import (
	"context"
	"fmt"

	"github.com/diewo77/go-purchases/internal/logging"
	"github.com/diewo77/go-purchases/internal/models"
	"github.com/diewo77/go-purchases/internal/notify"
	"github.com/sirupsen/logrus"
)

// StockAlertEvaluator raises a low-stock alert when a product is at or below
// its minimum. It runs after commit and never reports failure to its caller.
type StockAlertEvaluator struct {
	store    *StockStore
	notifier notify.Notifier
	logger   logrus.FieldLogger
}

func NewStockAlertEvaluator(store *StockStore, notifier notify.Notifier, logger logrus.FieldLogger) *StockAlertEvaluator {
	return &StockAlertEvaluator{store: store, notifier: notifier, logger: logger}
}

// Evaluate checks one committed product snapshot. Deleted products never alert.
func (e *StockAlertEvaluator) Evaluate(ctx context.Context, p *models.Product, reason string) {
	if p == nil || p.DeletedAt.Valid || !p.IsLowStock() || e.notifier == nil {
		return
	}
	alert := notify.NewAlert(p.ID, p.Code, p.Name, p.StockQuantity, p.StockMinimum, reason)
	defer func() {
		if r := recover(); r != nil {
			logging.LogError(e.logger, "services", "Evaluate", "notifier_panic", alert, fmt.Errorf("%v", r))
		}
	}()
	if err := e.notifier.Notify(ctx, alert); err != nil {
		logging.LogError(e.logger, "services", "Evaluate", "notify", alert, err)
	}
}

// EvaluateProducts re-reads each product from the store and evaluates it once.
func (e *StockAlertEvaluator) EvaluateProducts(ctx context.Context, ids []uint, reason string) {
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := e.store.Get(ctx, id)
		if err != nil {
			logging.LogError(e.logger, "services", "EvaluateProducts", "reload_product", map[string]uint{"product_id": id}, err)
			continue
		}
		e.Evaluate(ctx, p, reason)
	}
}
