package services

import (
	"context"

	"github.com/diewo77/go-purchases/internal/models"
	"gorm.io/gorm"
)

// UnitOfWork is the state of one ledger transaction: the open tx, the product
// rows locked so far and the stock movements to persist before commit.
// It is created per operation and never shared between requests.
type UnitOfWork struct {
	tx *gorm.DB

	purchaseID uint
	kind       models.StockMovementKind

	locked    map[uint]*models.Product
	touched   []uint
	movements []models.StockMovement
}

// Tx exposes the transaction for callers that write their own rows.
func (u *UnitOfWork) Tx() *gorm.DB { return u.tx }

// Touched lists products whose stock changed, in mutation order.
func (u *UnitOfWork) Touched() []uint { return u.touched }

// Reference tags subsequent stock movements with the purchase and kind.
func (u *UnitOfWork) Reference(purchaseID uint, kind models.StockMovementKind) {
	u.purchaseID = purchaseID
	u.kind = kind
}

func (u *UnitOfWork) record(productID uint, delta, before, after int) {
	u.touched = append(u.touched, productID)
	u.movements = append(u.movements, models.StockMovement{
		ProductID:   productID,
		PurchaseID:  u.purchaseID,
		Kind:        u.kind,
		Delta:       delta,
		StockBefore: before,
		StockAfter:  after,
	})
}

func (u *UnitOfWork) flush() error {
	if len(u.movements) == 0 {
		return nil
	}
	return u.tx.Create(&u.movements).Error
}

// RunInUnitOfWork runs fn inside one database transaction. Either everything
// fn wrote (plus the recorded stock movements) commits, or nothing does.
func RunInUnitOfWork(ctx context.Context, db *gorm.DB, fn func(uow *UnitOfWork) error) (*UnitOfWork, error) {
	uow := &UnitOfWork{locked: map[uint]*models.Product{}}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		if err := fn(uow); err != nil {
			return err
		}
		return uow.flush()
	})
	uow.tx = nil
	if err != nil {
		return nil, err
	}
	return uow, nil
}
