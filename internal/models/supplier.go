package models

import (
	"time"

	"gorm.io/gorm"
)

// Supplier is the vendor a purchase is bought from.
// Inactive suppliers cannot receive new purchases.
type Supplier struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name  string `gorm:"size:255;not null" json:"name"`
	TaxID string `gorm:"size:50;uniqueIndex" json:"tax_id"`
	Email string `gorm:"size:255" json:"email,omitempty"`
	Phone string `gorm:"size:50" json:"phone,omitempty"`

	Active bool `gorm:"not null" json:"active"`
}
