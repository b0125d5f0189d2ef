package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase (compra) records stock bought from a supplier.
// While Active it contributes its lines to product stock; annulling flips Active
// and reverses the stock, purchases are never physically deleted.
type Purchase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Date time.Time `gorm:"not null;index" json:"date"`

	SupplierID uint      `gorm:"index;not null" json:"supplier_id"`
	Supplier   *Supplier `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`

	// Amounts, stored with 2-decimal precision
	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	Active bool `gorm:"not null;index" json:"active"`

	// IdempotencyKey lets a client retry a create without applying stock twice.
	IdempotencyKey *string `gorm:"size:100;uniqueIndex" json:"idempotency_key,omitempty"`

	// Lines are fixed at creation time.
	Lines []PurchaseLine `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

// IsAnnulled returns true once the purchase no longer counts toward stock.
func (p *Purchase) IsAnnulled() bool {
	return !p.Active
}

// StockDeltas aggregates line quantities per product.
func (p *Purchase) StockDeltas() map[uint]int {
	deltas := make(map[uint]int, len(p.Lines))
	for _, l := range p.Lines {
		deltas[l.ProductID] += l.Quantity
	}
	return deltas
}

// ProductIDs returns the distinct referenced product ids in ascending order.
// Rows are always locked in this order.
func (p *Purchase) ProductIDs() []uint {
	return SortedIDs(p.StockDeltas())
}

// PurchaseLine is one product/quantity/price triple of a purchase.
// UnitPrice is the price paid at purchase time, independent of the catalog price.
type PurchaseLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PurchaseID uint `gorm:"index;not null" json:"purchase_id"`

	ProductID uint     `gorm:"index;not null" json:"product_id"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	Quantity  int             `gorm:"not null;check:chk_purchase_lines_quantity_positive,quantity > 0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
}

// Amount calculates the line total excluding VAT.
func (l *PurchaseLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SortedIDs returns the keys of m in ascending order.
func SortedIDs[V any](m map[uint]V) []uint {
	ids := make([]uint, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
