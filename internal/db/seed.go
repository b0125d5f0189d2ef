package db

import (
	"errors"

	"github.com/diewo77/go-purchases/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Seed inserts a demo supplier and a few products. Running it twice is a no-op.
func Seed(db *gorm.DB) error {
	suppliers := []models.Supplier{
		{Name: "Distribuidora Central", TaxID: "900123456-1", Email: "ventas@central.example", Active: true},
	}
	for _, s := range suppliers {
		var existing models.Supplier
		err := db.Where("tax_id = ?", s.TaxID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&s).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	products := []models.Product{
		{Code: "SKU-001", Name: "Arroz 500g", UnitPrice: decimal.RequireFromString("2.40"), StockMinimum: 10, IsActive: true},
		{Code: "SKU-002", Name: "Aceite 1L", UnitPrice: decimal.RequireFromString("6.90"), StockMinimum: 5, IsActive: true},
		{Code: "SKU-003", Name: "Azucar 1kg", UnitPrice: decimal.RequireFromString("3.10"), StockMinimum: 8, IsActive: true},
	}
	for _, p := range products {
		var existing models.Product
		err := db.Unscoped().Where("code = ?", p.Code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&p).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
