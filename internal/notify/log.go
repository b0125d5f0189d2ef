package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes alerts as structured warnings.
type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.logger.WithFields(logrus.Fields{
		"event_id":       a.EventID,
		"product_id":     a.ProductID,
		"product_code":   a.ProductCode,
		"stock_quantity": a.StockQuantity,
		"stock_minimum":  a.StockMinimum,
		"reason":         a.Reason,
		"summary":        a.String(),
	}).Warn("low_stock")
	return nil
}
