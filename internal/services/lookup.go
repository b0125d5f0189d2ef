package services

import (
	"context"

	"github.com/diewo77/go-purchases/internal/models"
	"gorm.io/gorm"
)

// SupplierLookup answers whether a supplier can receive purchases.
type SupplierLookup interface {
	Exists(ctx context.Context, supplierID uint) (bool, error)
}

// SupplierDirectory is the gorm-backed SupplierLookup.
type SupplierDirectory struct {
	db *gorm.DB
}

func NewSupplierDirectory(db *gorm.DB) *SupplierDirectory {
	return &SupplierDirectory{db: db}
}

// Exists is true only for a live, active supplier.
func (d *SupplierDirectory) Exists(ctx context.Context, supplierID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Supplier{}).
		Where("id = ? AND active = ?", supplierID, true).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
