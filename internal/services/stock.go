package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-purchases/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockStore owns product quantity on hand. Every mutation runs inside a
// UnitOfWork on a row locked with SELECT ... FOR UPDATE and is applied as an
// in-database expression, so concurrent purchases never lose an update.
type StockStore struct {
	db *gorm.DB
}

func NewStockStore(db *gorm.DB) *StockStore {
	return &StockStore{db: db}
}

// Get reads the committed state of a product, soft-deleted or not.
func (s *StockStore) Get(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Unscoped().First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MissingProducts returns the ids in ids that do not resolve to a live product.
func (s *StockStore) MissingProducts(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	var missing []uint
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// LockProducts locks the given product rows in ascending id order.
// Soft-deleted products are locked too: stock already applied to them must
// stay reversible. Already locked rows are skipped.
func (s *StockStore) LockProducts(uow *UnitOfWork, ids []uint) error {
	want := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := uow.locked[id]; !ok {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil
	}
	pending := models.SortedIDs(want)
	var rows []models.Product
	err := uow.tx.Unscoped().Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", pending).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) != len(pending) {
		return ErrProductNotFound
	}
	for i := range rows {
		uow.locked[rows[i].ID] = &rows[i]
	}
	return nil
}

// LockLiveProducts locks like LockProducts but rejects soft-deleted products
// with ErrProductNotFound. New stock is only ever applied to live products.
func (s *StockStore) LockLiveProducts(uow *UnitOfWork, ids []uint) error {
	if err := s.LockProducts(uow, ids); err != nil {
		return err
	}
	for _, id := range ids {
		if uow.locked[id].DeletedAt.Valid {
			return fmt.Errorf("%w: product %d is deleted", ErrProductNotFound, id)
		}
	}
	return nil
}

func (s *StockStore) locked(uow *UnitOfWork, id uint) (*models.Product, error) {
	if err := s.LockProducts(uow, []uint{id}); err != nil {
		return nil, err
	}
	return uow.locked[id], nil
}

// IncrementStock adds delta to the product's stock.
func (s *StockStore) IncrementStock(uow *UnitOfWork, productID uint, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("%w: increment must be positive, got %d", ErrInternal, delta)
	}
	p, err := s.locked(uow, productID)
	if err != nil {
		return err
	}
	res := uow.tx.Unscoped().Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	before := p.StockQuantity
	p.StockQuantity += delta
	uow.record(productID, delta, before, p.StockQuantity)
	return nil
}

// DecrementStock removes delta from the product's stock. It refuses to go
// below zero and returns ErrNegativeStock instead of clamping.
func (s *StockStore) DecrementStock(uow *UnitOfWork, productID uint, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("%w: decrement must be positive, got %d", ErrInternal, delta)
	}
	p, err := s.locked(uow, productID)
	if err != nil {
		return err
	}
	if p.StockQuantity < delta {
		return fmt.Errorf("%w: product %d has %d, cannot remove %d", ErrNegativeStock, productID, p.StockQuantity, delta)
	}
	res := uow.tx.Unscoped().Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, delta).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", delta))
	if errors.Is(res.Error, gorm.ErrCheckConstraintViolated) {
		return fmt.Errorf("%w: product %d rejected by chk_products_stock_non_negative", ErrNegativeStock, productID)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d changed under lock", ErrNegativeStock, productID)
	}
	before := p.StockQuantity
	p.StockQuantity -= delta
	uow.record(productID, -delta, before, p.StockQuantity)
	return nil
}

// LowStock lists active products at or below their minimum.
func (s *StockStore) LowStock(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND stock_quantity <= stock_minimum", true).
		Order("stock_quantity - stock_minimum, id").
		Find(&products).Error
	return products, err
}
