package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable or consumable item whose quantity on hand is tracked.
// StockQuantity is only changed through the stock store, never by saving a stale copy.
type Product struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code        string          `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"unit_price"`

	// Stock counters
	StockQuantity int `gorm:"not null;default:0;check:chk_products_stock_non_negative,stock_quantity >= 0" json:"stock_quantity"`
	StockMinimum  int `gorm:"not null;default:0" json:"stock_minimum"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

// IsLowStock reports whether the quantity on hand is at or below the alert threshold.
func (p *Product) IsLowStock() bool {
	return p.StockQuantity <= p.StockMinimum
}
