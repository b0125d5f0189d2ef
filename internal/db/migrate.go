package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-purchases/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres:// database driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Models lists every table owned by the purchase ledger, in dependency order.
func Models() []any {
	return []any{
		&models.Supplier{},
		&models.Product{},
		&models.Purchase{},
		&models.PurchaseLine{},
		&models.StockMovement{},
	}
}

// Migrate runs AutoMigrate for all models.
// Used in development and with sqlite; production runs RunSQLMigrations.
func Migrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// RunSQLMigrations applies the embedded SQL migrations with golang-migrate.
// databaseURL must be a postgres:// URL.
func RunSQLMigrations(databaseURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
