package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/diewo77/go-purchases/internal/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// PurchaseFilter narrows a purchase listing. Nil fields are ignored.
type PurchaseFilter struct {
	SupplierID *uint
	Active     *bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type PurchasePage struct {
	Items  []models.Purchase `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// PurchaseQuery is the read side of the ledger. It never locks rows.
type PurchaseQuery struct {
	db *gorm.DB
}

func NewPurchaseQuery(db *gorm.DB) *PurchaseQuery {
	return &PurchaseQuery{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB { return db.Order("id") }

// Get returns a purchase with its supplier, lines and line products.
func (q *PurchaseQuery) Get(ctx context.Context, id uint) (*models.Purchase, error) {
	var p models.Purchase
	err := q.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Lines", orderedLines).
		Preload("Lines.Product").
		First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	return &p, nil
}

func (f PurchaseFilter) normalize() PurchaseFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f PurchaseFilter) apply(db *gorm.DB) *gorm.DB {
	if f.SupplierID != nil {
		db = db.Where("supplier_id = ?", *f.SupplierID)
	}
	if f.Active != nil {
		db = db.Where("active = ?", *f.Active)
	}
	if f.From != nil {
		db = db.Where("date >= ?", f.From.UTC())
	}
	if f.To != nil {
		db = db.Where("date <= ?", f.To.UTC())
	}
	return db
}

// List returns one page of purchases, newest first, with their lines.
func (q *PurchaseQuery) List(ctx context.Context, f PurchaseFilter) (*PurchasePage, error) {
	f = f.normalize()
	page := &PurchasePage{Limit: f.Limit, Offset: f.Offset, Items: []models.Purchase{}}

	base := f.apply(q.db.WithContext(ctx).Model(&models.Purchase{}))
	if err := base.Count(&page.Total).Error; err != nil {
		return nil, translateStoreError(err)
	}
	err := f.apply(q.db.WithContext(ctx)).
		Preload("Lines", orderedLines).
		Order("date DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&page.Items).Error
	if err != nil {
		return nil, translateStoreError(err)
	}
	return page, nil
}

// Movements returns the stock history of a product, oldest first.
func (q *PurchaseQuery) Movements(ctx context.Context, productID uint) ([]models.StockMovement, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return nil, translateStoreError(err)
	}
	if count == 0 {
		return nil, ErrProductNotFound
	}
	movements := []models.StockMovement{}
	err := q.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id").
		Find(&movements).Error
	if err != nil {
		return nil, translateStoreError(err)
	}
	return movements, nil
}

// LowStock lists active products at or below their minimum.
func (q *PurchaseQuery) LowStock(ctx context.Context) ([]models.Product, error) {
	products, err := NewStockStore(q.db).LowStock(ctx)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

var exportHeadings = []string{"ID", "Date", "SupplierID", "Lines", "Subtotal", "Tax", "Total", "Active"}

// ExportXLSX writes every purchase matching f (ignoring paging) as one sheet.
func (q *PurchaseQuery) ExportXLSX(ctx context.Context, f PurchaseFilter, w io.Writer) error {
	var purchases []models.Purchase
	err := f.apply(q.db.WithContext(ctx)).
		Preload("Lines").
		Order("date, id").
		Find(&purchases).Error
	if err != nil {
		return translateStoreError(err)
	}

	x := excelize.NewFile()
	defer x.Close()
	const sheet = "Purchases"
	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for i, h := range exportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := x.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, p := range purchases {
		row := i + 2
		values := []any{
			p.ID,
			p.Date.Format("2006-01-02"),
			p.SupplierID,
			len(p.Lines),
			p.Subtotal.InexactFloat64(),
			p.Tax.InexactFloat64(),
			p.Total.InexactFloat64(),
			p.Active,
		}
		if err := x.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
	}
	return x.Write(w)
}
