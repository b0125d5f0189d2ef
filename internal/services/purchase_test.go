package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/go-purchases/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func TestCreateAndAnnulPurchaseScenario(t *testing.T) {
	db := setupTestDB(t)
	rec := &recordingNotifier{}
	ledger := newTestLedger(db, rec)
	ctx := context.Background()

	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 20, 5)

	p, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 3, "20.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "60.00", p.Subtotal.StringFixed(2))
	assert.Equal(t, "11.40", p.Tax.StringFixed(2))
	assert.Equal(t, "71.40", p.Total.StringFixed(2))
	assert.True(t, p.Active)
	assert.Equal(t, fixedNow, p.Date)
	assert.Equal(t, 23, stockOf(t, db, a.ID))
	assert.Empty(t, rec.Alerts(), "stock above minimum must not alert")

	annulled, err := ledger.AnnulPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, annulled.Active)
	assert.Equal(t, 20, stockOf(t, db, a.ID))

	_, err = ledger.AnnulPurchase(ctx, p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 20, stockOf(t, db, a.ID), "second annul must not decrement again")

	var movements []models.StockMovement
	require.NoError(t, db.Order("id").Find(&movements).Error)
	require.Len(t, movements, 2)
	assert.Equal(t, models.StockMovementPurchase, movements[0].Kind)
	assert.Equal(t, 3, movements[0].Delta)
	assert.Equal(t, 20, movements[0].StockBefore)
	assert.Equal(t, 23, movements[0].StockAfter)
	assert.Equal(t, models.StockMovementAnnulment, movements[1].Kind)
	assert.Equal(t, -3, movements[1].Delta)
	assert.Equal(t, p.ID, movements[1].PurchaseID)
}

func TestCreatePurchaseValidation(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	ctx := context.Background()

	active := seedSupplier(t, db, "active", true)
	inactive := seedSupplier(t, db, "inactive", false)
	prod := seedProduct(t, db, "P", 0, 0)

	tests := []struct {
		name  string
		in    CreatePurchaseInput
		field string
		code  string
	}{
		{
			name:  "no lines",
			in:    CreatePurchaseInput{SupplierID: active.ID},
			field: "lines",
			code:  "required",
		},
		{
			name:  "zero quantity",
			in:    CreatePurchaseInput{SupplierID: active.ID, Lines: []PurchaseLineInput{line(prod.ID, 0, "1.00")}},
			field: "lines[0].quantity",
			code:  "must_be_positive",
		},
		{
			name:  "negative price",
			in:    CreatePurchaseInput{SupplierID: active.ID, Lines: []PurchaseLineInput{line(prod.ID, 1, "-1.00")}},
			field: "lines[0].unit_price",
			code:  "must_not_be_negative",
		},
		{
			name:  "negative total",
			in:    CreatePurchaseInput{SupplierID: active.ID, Total: decPtr("-5"), Lines: []PurchaseLineInput{line(prod.ID, 1, "1.00")}},
			field: "total",
			code:  "must_not_be_negative",
		},
		{
			name:  "unknown supplier",
			in:    CreatePurchaseInput{SupplierID: 999, Lines: []PurchaseLineInput{line(prod.ID, 1, "1.00")}},
			field: "supplier_id",
			code:  "not_found_or_inactive",
		},
		{
			name:  "inactive supplier",
			in:    CreatePurchaseInput{SupplierID: inactive.ID, Lines: []PurchaseLineInput{line(prod.ID, 1, "1.00")}},
			field: "supplier_id",
			code:  "not_found_or_inactive",
		},
		{
			name:  "unknown product",
			in:    CreatePurchaseInput{SupplierID: active.ID, Lines: []PurchaseLineInput{line(prod.ID, 1, "1.00"), line(4242, 1, "1.00")}},
			field: "lines[1].product_id",
			code:  "not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.CreatePurchase(ctx, tt.in)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.Equal(t, tt.code, ve.Violations[tt.field], "violations: %v", ve.Violations)
		})
	}

	assert.Zero(t, count(t, db, &models.Purchase{}))
	assert.Zero(t, count(t, db, &models.PurchaseLine{}))
	assert.Equal(t, 0, stockOf(t, db, prod.ID))
}

func TestCreatePurchaseIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 4, 0)
	b := seedProduct(t, db, "B", 7, 0)

	// fail the last write of the transaction
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_movements", func(tx *gorm.DB) {
		if tx.Statement.Table == "stock_movements" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 2, "1.00"), line(b.ID, 3, "1.00")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)

	assert.Zero(t, count(t, db, &models.Purchase{}))
	assert.Zero(t, count(t, db, &models.PurchaseLine{}))
	assert.Equal(t, 4, stockOf(t, db, a.ID))
	assert.Equal(t, 7, stockOf(t, db, b.ID))
}

func TestCreatePurchaseAggregatesRepeatedProduct(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 1, 0)

	p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 2, "5.00"), line(a.ID, 4, "6.00")},
	})
	require.NoError(t, err)
	assert.Len(t, p.Lines, 2)
	assert.Equal(t, 7, stockOf(t, db, a.ID))
	assert.Equal(t, int64(1), count(t, db, &models.StockMovement{}), "one movement per product")
}

func TestCreatePurchaseTotals(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 0)
	lines := []PurchaseLineInput{line(a.ID, 2, "100.00"), line(a.ID, 1, "50.00")}

	tests := []struct {
		name                      string
		total, tax                string
		subtotal, wantTax, wantTT string
	}{
		{name: "derived", subtotal: "250.00", wantTax: "47.50", wantTT: "297.50"},
		{name: "explicit total", total: "119.00", subtotal: "100.00", wantTax: "19.00", wantTT: "119.00"},
		{name: "explicit pair", total: "300.00", tax: "50.00", subtotal: "250.00", wantTax: "50.00", wantTT: "300.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreatePurchaseInput{SupplierID: supplier.ID, Lines: lines}
			if tt.total != "" {
				in.Total = decPtr(tt.total)
			}
			if tt.tax != "" {
				in.Tax = decPtr(tt.tax)
			}
			p, err := ledger.CreatePurchase(context.Background(), in)
			require.NoError(t, err)

			stored, err := NewPurchaseQuery(db).Get(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, stored.Subtotal.StringFixed(2))
			assert.Equal(t, tt.wantTax, stored.Tax.StringFixed(2))
			assert.Equal(t, tt.wantTT, stored.Total.StringFixed(2))
		})
	}
}

func TestCreateInactivePurchaseLeavesStock(t *testing.T) {
	db := setupTestDB(t)
	rec := &recordingNotifier{}
	ledger := newTestLedger(db, rec)
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 2, 10)
	inactive := false

	p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
		SupplierID: supplier.ID,
		Active:     &inactive,
		Lines:      []PurchaseLineInput{line(a.ID, 5, "1.00")},
	})
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Equal(t, 2, stockOf(t, db, a.ID))
	assert.Zero(t, count(t, db, &models.StockMovement{}))
	assert.Empty(t, rec.Alerts(), "no stock touched, no evaluation")

	_, err = ledger.AnnulPurchase(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)
}

func TestCreatePurchaseIdempotencyKey(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 0)
	in := CreatePurchaseInput{
		SupplierID:     supplier.ID,
		IdempotencyKey: "order-77",
		Lines:          []PurchaseLineInput{line(a.ID, 4, "2.50")},
	}

	first, err := ledger.CreatePurchase(context.Background(), in)
	require.NoError(t, err)
	second, err := ledger.CreatePurchase(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, stockOf(t, db, a.ID), "retry must not apply stock twice")
	assert.Equal(t, int64(1), count(t, db, &models.Purchase{}))
	require.Len(t, second.Lines, 1)
}

func TestAnnulPurchaseNotFound(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})

	_, err := ledger.AnnulPurchase(context.Background(), 12345)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
	assert.True(t, IsNotFound(err))
}

func TestAnnulPurchaseNegativeStockGuard(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 0)
	b := seedProduct(t, db, "B", 0, 0)

	p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 5, "1.00"), line(b.ID, 5, "1.00")},
	})
	require.NoError(t, err)

	// manual correction elsewhere
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", b.ID).Update("stock_quantity", 2).Error)

	_, err = ledger.AnnulPurchase(context.Background(), p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNegativeStock)
	assert.True(t, IsConsistency(err))

	assert.Equal(t, 5, stockOf(t, db, a.ID), "earlier decrement rolled back")
	assert.Equal(t, 2, stockOf(t, db, b.ID))
	var stored models.Purchase
	require.NoError(t, db.First(&stored, p.ID).Error)
	assert.True(t, stored.Active)
	assert.Equal(t, int64(2), count(t, db, &models.StockMovement{}))
}

func TestReactivatePurchase(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	ctx := context.Background()
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 1, 0)

	p, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{SupplierID: supplier.ID, Lines: []PurchaseLineInput{line(a.ID, 3, "1.00")}})
	require.NoError(t, err)

	_, err = ledger.ReactivatePurchase(ctx, p.ID)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = ledger.AnnulPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, db, a.ID))

	re, err := ledger.ReactivatePurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, re.Active)
	assert.Equal(t, 4, stockOf(t, db, a.ID))

	var last models.StockMovement
	require.NoError(t, db.Order("id DESC").First(&last).Error)
	assert.Equal(t, models.StockMovementReactivation, last.Kind)
	assert.Equal(t, 3, last.Delta)
}

func TestUpdatePurchaseHeader(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	ctx := context.Background()
	s1 := seedSupplier(t, db, "S1", true)
	s2 := seedSupplier(t, db, "S2", true)
	off := seedSupplier(t, db, "OFF", false)
	a := seedProduct(t, db, "A", 0, 0)

	p, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{SupplierID: s1.ID, Lines: []PurchaseLineInput{line(a.ID, 1, "9.99")}})
	require.NoError(t, err)

	newDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	updated, err := ledger.UpdatePurchaseHeader(ctx, p.ID, UpdatePurchaseInput{SupplierID: &s2.ID, Date: &newDate})
	require.NoError(t, err)
	assert.Equal(t, s2.ID, updated.SupplierID)
	assert.Equal(t, newDate, updated.Date)
	assert.Equal(t, p.Total.StringFixed(2), updated.Total.StringFixed(2))
	assert.Equal(t, 1, stockOf(t, db, a.ID))

	_, err = ledger.UpdatePurchaseHeader(ctx, p.ID, UpdatePurchaseInput{SupplierID: &off.ID})
	assert.True(t, IsValidation(err), "inactive supplier rejected, got %v", err)

	var zero uint
	_, err = ledger.UpdatePurchaseHeader(ctx, p.ID, UpdatePurchaseInput{SupplierID: &zero})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "required", ve.Violations["supplier_id"])

	_, err = ledger.UpdatePurchaseHeader(ctx, p.ID, UpdatePurchaseInput{})
	assert.True(t, IsValidation(err))

	_, err = ledger.UpdatePurchaseHeader(ctx, 999, UpdatePurchaseInput{Date: &newDate})
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestConcurrentPurchasesDoNotLoseUpdates(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 0)

	const workers = 8
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{
				SupplierID: supplier.ID,
				Lines:      []PurchaseLineInput{line(a.ID, 5, "1.00")},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, workers*5, stockOf(t, db, a.ID))
	assert.Equal(t, int64(workers), count(t, db, &models.Purchase{}))
}

func TestConcurrentAnnulmentsDecrementOnce(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 4, 0)
	p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 6, "1.00")},
	})
	require.NoError(t, err)
	require.Equal(t, 10, stockOf(t, db, a.ID))

	const workers = 8
	errs := make([]error, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, errs[i] = ledger.AnnulPurchase(context.Background(), p.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, annulled int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyAnnulled):
			annulled++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, annulled)
	assert.Equal(t, 4, stockOf(t, db, a.ID))

	var moves int64
	require.NoError(t, db.Model(&models.StockMovement{}).
		Where("kind = ?", models.StockMovementAnnulment).Count(&moves).Error)
	assert.Equal(t, int64(1), moves)
}

func TestAnnulmentsInterleavedWithOtherProductPurchases(t *testing.T) {
	db := setupTestDB(t)
	ledger := newTestLedger(db, &recordingNotifier{})
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 1, 0)
	b := seedProduct(t, db, "B", 0, 0)

	const n = 6
	var toAnnul []uint
	for i := 0; i < n; i++ {
		p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
			SupplierID: supplier.ID,
			Lines:      []PurchaseLineInput{line(a.ID, 2, "1.00")},
		})
		require.NoError(t, err)
		toAnnul = append(toAnnul, p.ID)
	}
	require.Equal(t, 1+2*n, stockOf(t, db, a.ID))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		id := toAnnul[i]
		g.Go(func() error {
			_, err := ledger.AnnulPurchase(ctx, id)
			return err
		})
		g.Go(func() error {
			_, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{
				SupplierID: supplier.ID,
				Lines:      []PurchaseLineInput{line(b.ID, 3, "1.00")},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, stockOf(t, db, a.ID))
	assert.Equal(t, 3*n, stockOf(t, db, b.ID))
}

func TestAnnulAndReactivateAfterProductDeleted(t *testing.T) {
	db := setupTestDB(t)
	rec := &recordingNotifier{}
	ledger := newTestLedger(db, rec)
	ctx := context.Background()
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 5)

	p, err := ledger.CreatePurchase(ctx, CreatePurchaseInput{
		SupplierID: supplier.ID,
		Lines:      []PurchaseLineInput{line(a.ID, 3, "1.00")},
	})
	require.NoError(t, err)
	require.NoError(t, db.Delete(&models.Product{}, a.ID).Error)
	rec.Reset()

	annulled, err := ledger.AnnulPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, annulled.Active)

	var stored models.Product
	require.NoError(t, db.Unscoped().First(&stored, a.ID).Error)
	assert.Equal(t, 0, stored.StockQuantity)
	assert.Empty(t, rec.Alerts(), "deleted products do not alert")

	_, err = ledger.ReactivatePurchase(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, db.Unscoped().First(&stored, a.ID).Error)
	assert.Equal(t, 3, stored.StockQuantity)
}

func TestAlertThreshold(t *testing.T) {
	tests := []struct {
		name        string
		start, qty  int
		afterCreate int
		afterAnnul  int
	}{
		{name: "8 to 13 and back", start: 8, qty: 5, afterCreate: 13, afterAnnul: 8},
		{name: "3 to 13 and back", start: 3, qty: 10, afterCreate: 13, afterAnnul: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			rec := &recordingNotifier{}
			ledger := newTestLedger(db, rec)
			supplier := seedSupplier(t, db, "S", true)
			a := seedProduct(t, db, "A", tt.start, 10)

			p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
				SupplierID: supplier.ID,
				Lines:      []PurchaseLineInput{line(a.ID, tt.qty, "1.00")},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.afterCreate, stockOf(t, db, a.ID))
			assert.Empty(t, rec.Alerts())

			_, err = ledger.AnnulPurchase(context.Background(), p.ID)
			require.NoError(t, err)
			alerts := rec.Alerts()
			require.Len(t, alerts, 1)
			assert.Equal(t, a.ID, alerts[0].ProductID)
			assert.Equal(t, tt.afterAnnul, alerts[0].StockQuantity)
			assert.Equal(t, 10, alerts[0].StockMinimum)
			assert.Contains(t, alerts[0].Reason, "annulled")
		})
	}
}

func TestNotifierFailureDoesNotFailPurchase(t *testing.T) {
	tests := map[string]*recordingNotifier{
		"error": {err: errNotifierDown},
		"panic": {panic: true},
	}
	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			db := setupTestDB(t)
			ledger := newTestLedger(db, rec)
			supplier := seedSupplier(t, db, "S", true)
			a := seedProduct(t, db, "A", 0, 10)

			p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
				SupplierID: supplier.ID,
				Lines:      []PurchaseLineInput{line(a.ID, 1, "1.00")},
			})
			require.NoError(t, err)
			assert.NotZero(t, p.ID)
			assert.Len(t, rec.Alerts(), 1, "notifier was still called")
			assert.Equal(t, 1, stockOf(t, db, a.ID))
		})
	}
}

func TestCreatePurchaseConfiguredVATRate(t *testing.T) {
	db := setupTestDB(t)
	supplier := seedSupplier(t, db, "S", true)
	a := seedProduct(t, db, "A", 0, 0)

	for _, rate := range []string{"0", "0.055"} {
		r := dec(rate)
		ledger := NewPurchaseLedger(db, NewSupplierDirectory(db), &recordingNotifier{}, LedgerOptions{VATRate: &r})
		p, err := ledger.CreatePurchase(context.Background(), CreatePurchaseInput{
			SupplierID: supplier.ID,
			Lines:      []PurchaseLineInput{line(a.ID, 1, "100.00")},
		})
		require.NoError(t, err)
		assert.True(t, p.Tax.Equal(dec("100").Mul(r)), "rate %s gave tax %s", rate, p.Tax)
	}
}
