package main

import (
	"net/http"
	"time"

	"github.com/diewo77/go-purchases/httpx"
	"github.com/diewo77/go-purchases/internal/config"
	"github.com/diewo77/go-purchases/internal/handlers"
	"github.com/diewo77/go-purchases/internal/notify"
	"github.com/diewo77/go-purchases/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux    *http.ServeMux
	db     *gorm.DB
	logger logrus.FieldLogger

	purchases *handlers.PurchaseHandler
	stock     *handlers.StockHandler
}

// NewApp wires the ledger, its read side and the HTTP handlers.
func NewApp(db *gorm.DB, notifier notify.Notifier, ledgerCfg config.LedgerConfig, logger logrus.FieldLogger) *App {
	vatRate := decimal.NewFromFloat(ledgerCfg.VATRate)
	ledger := services.NewPurchaseLedger(db, services.NewSupplierDirectory(db), notifier, services.LedgerOptions{
		VATRate: &vatRate,
		Logger:  logger,
	})
	query := services.NewPurchaseQuery(db)
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		logger:    logger,
		purchases: handlers.NewPurchaseHandler(ledger, query),
		stock:     handlers.NewStockHandler(query),
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withLogging(a.logger, a.mux).ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	a.mux.HandleFunc("GET /health", a.health)
	a.mux.HandleFunc("GET /healthz", a.healthz)

	ph := a.purchases
	a.mux.HandleFunc("POST /purchases", ph.Create)
	a.mux.HandleFunc("GET /purchases", ph.List)
	a.mux.HandleFunc("GET /purchases/export.xlsx", ph.Export)
	a.mux.HandleFunc("GET /purchases/{id}", ph.View)
	a.mux.HandleFunc("POST /purchases/{id}", ph.Update)
	a.mux.HandleFunc("POST /purchases/{id}/annul", ph.Annul)
	a.mux.HandleFunc("POST /purchases/{id}/reactivate", ph.Reactivate)

	sh := a.stock
	a.mux.HandleFunc("GET /products/low-stock", sh.LowStock)
	a.mux.HandleFunc("GET /products/{id}/movements", sh.Movements)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthz also checks the database.
func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		httpx.JSONError(w, http.StatusServiceUnavailable, "database_unavailable", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging middleware.
func withLogging(logger logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
