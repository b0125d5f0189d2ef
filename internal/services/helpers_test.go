package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-purchases/internal/logging"
	"github.com/diewo77/go-purchases/internal/models"
	"github.com/diewo77/go-purchases/internal/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// unique in-memory database per test
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open db")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite allows a single writer. With one connection transactions run
	// serially and FOR UPDATE is dropped by the driver, so concurrency tests
	// on sqlite check bookkeeping under contention, not the row locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Supplier{},
		&models.Product{},
		&models.Purchase{},
		&models.PurchaseLine{},
		&models.StockMovement{},
	), "migrate")
	return db
}

func seedSupplier(t *testing.T, db *gorm.DB, name string, active bool) models.Supplier {
	t.Helper()
	s := models.Supplier{Name: name, TaxID: "TAX-" + name, Active: active}
	require.NoError(t, db.Create(&s).Error, "seed supplier")
	return s
}

func seedProduct(t *testing.T, db *gorm.DB, code string, stock, minimum int) models.Product {
	t.Helper()
	p := models.Product{
		Code:          code,
		Name:          "Product " + code,
		UnitPrice:     decimal.RequireFromString("10.00"),
		StockQuantity: stock,
		StockMinimum:  minimum,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&p).Error, "seed product")
	return p
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.StockQuantity
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// recordingNotifier keeps every alert it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
	panic  bool
}

func (r *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	if r.panic {
		panic("notifier exploded")
	}
	return r.err
}

func (r *recordingNotifier) Alerts() []notify.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func (r *recordingNotifier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
}

var errNotifierDown = errors.New("notifier down")

func newTestLedger(db *gorm.DB, n notify.Notifier) *PurchaseLedger {
	return NewPurchaseLedger(db, NewSupplierDirectory(db), n, LedgerOptions{
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})
}

func line(productID uint, qty int, price string) PurchaseLineInput {
	return PurchaseLineInput{ProductID: productID, Quantity: qty, UnitPrice: dec(price)}
}
