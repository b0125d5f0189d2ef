package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-purchases/internal/config"
	"github.com/diewo77/go-purchases/internal/db"
	"github.com/diewo77/go-purchases/internal/logging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.App.LogLevel)

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"host":   cfg.Database.Host,
		"dbname": cfg.Database.DBName,
	}).Info("connecting to database")
	dbConn, err := db.Connect(cfg.Database, db.Options{Tracing: cfg.App.Tracing, Logger: logger})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}

	if *migrateOnlyFlag {
		if err := migrate(cfg, dbConn); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		logger.Info("migrations completed successfully")
		return
	}

	if *seedOnlyFlag {
		if err := db.Seed(dbConn); err != nil {
			logger.WithError(err).Fatal("seeding failed")
		}
		logger.Info("seeding completed successfully")
		return
	}

	if cfg.App.Migrations || cfg.Database.Driver == "sqlite" {
		if err := migrate(cfg, dbConn); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		logger.Info("migrations completed")
	}
	if cfg.App.Seed {
		if err := db.Seed(dbConn); err != nil {
			logger.WithError(err).Fatal("seeding failed")
		}
	}

	notifier, closeNotifier, err := buildNotifier(cfg.Notifier, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to set up alert notifier")
	}
	defer closeNotifier()

	app := NewApp(dbConn, notifier, cfg.Ledger, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Server.Port, "dev": cfg.App.Dev, "notifier": cfg.Notifier.Kind}).
			Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("error during shutdown")
	}
	logger.Info("server stopped gracefully")
}

// migrate runs the embedded SQL migrations against postgres, AutoMigrate otherwise.
func migrate(cfg *config.Config, dbConn *gorm.DB) error {
	if cfg.Database.Driver == "sqlite" {
		return db.Migrate(dbConn)
	}
	return db.RunSQLMigrations(cfg.Database.URL())
}
