package models

import "time"

// StockMovementKind tells which ledger operation produced a movement.
type StockMovementKind string

const (
	StockMovementPurchase     StockMovementKind = "purchase"
	StockMovementAnnulment    StockMovementKind = "annulment"
	StockMovementReactivation StockMovementKind = "reactivation"
)

// StockMovement records one committed change of a product's stock.
// It is written in the same transaction as the change itself.
type StockMovement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	ProductID  uint              `gorm:"index;not null" json:"product_id"`
	PurchaseID uint              `gorm:"index;not null" json:"purchase_id"`
	Kind       StockMovementKind `gorm:"size:20;not null" json:"kind"`

	Delta       int `gorm:"not null" json:"delta"` // positive = in, negative = out
	StockBefore int `gorm:"not null" json:"stock_before"`
	StockAfter  int `gorm:"not null" json:"stock_after"`
}
