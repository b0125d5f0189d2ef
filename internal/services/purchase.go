package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-purchases/internal/logging"
	"github.com/diewo77/go-purchases/internal/models"
	"github.com/diewo77/go-purchases/internal/notify"
	"github.com/diewo77/go-purchases/validation"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePurchaseInput is the validated shape of a new purchase.
type CreatePurchaseInput struct {
	SupplierID     uint                `json:"supplier_id" validate:"required"`
	Date           *time.Time          `json:"date,omitempty"`
	Total          *decimal.Decimal    `json:"total,omitempty"`
	Tax            *decimal.Decimal    `json:"tax,omitempty"`
	Active         *bool               `json:"active,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty" validate:"max=100"`
	Lines          []PurchaseLineInput `json:"lines" validate:"required,min=1,dive"`
}

// PurchaseLineInput is one requested line.
type PurchaseLineInput struct {
	ProductID uint            `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// UpdatePurchaseInput changes header fields only; lines and totals are fixed.
type UpdatePurchaseInput struct {
	SupplierID *uint      `json:"supplier_id,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
}

// LedgerOptions tunes a PurchaseLedger. Nil fields pick the defaults.
type LedgerOptions struct {
	VATRate *decimal.Decimal
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// PurchaseLedger owns the purchase lifecycle and its effect on stock.
type PurchaseLedger struct {
	db        *gorm.DB
	suppliers SupplierLookup
	stock     *StockStore
	alerts    *StockAlertEvaluator
	vatRate   decimal.Decimal
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewPurchaseLedger(db *gorm.DB, suppliers SupplierLookup, notifier notify.Notifier, opts LedgerOptions) *PurchaseLedger {
	vatRate := models.DefaultVATRate
	if opts.VATRate != nil {
		vatRate = *opts.VATRate
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	stock := NewStockStore(db)
	return &PurchaseLedger{
		db:        db,
		suppliers: suppliers,
		stock:     stock,
		alerts:    NewStockAlertEvaluator(stock, notifier, opts.Logger),
		vatRate:   vatRate,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Stock exposes the ledger's stock store for read paths.
func (l *PurchaseLedger) Stock() *StockStore { return l.stock }

// CreatePurchase persists the header, its lines and, for an active purchase,
// the matching stock increments in one transaction. Low-stock evaluation runs
// only after commit.
func (l *PurchaseLedger) CreatePurchase(ctx context.Context, in CreatePurchaseInput) (*models.Purchase, error) {
	if err := l.validateCreate(ctx, in); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		existing, err := l.findByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, l.fail("CreatePurchase", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	p := l.buildPurchase(in, key)
	uow, err := RunInUnitOfWork(ctx, l.db, func(uow *UnitOfWork) error {
		tx := uow.Tx()
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}
		for i := range p.Lines {
			p.Lines[i].PurchaseID = p.ID
		}
		if err := tx.Create(&p.Lines).Error; err != nil {
			return err
		}
		if !p.Active {
			return nil
		}
		uow.Reference(p.ID, models.StockMovementPurchase)
		// products deleted since validation
		if err := l.stock.LockLiveProducts(uow, p.ProductIDs()); err != nil {
			return err
		}
		return l.applyIncrements(uow, p)
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &ValidationError{Violations: validation.Violations{"lines": "product_not_found"}}
		}
		err = l.fail("CreatePurchase", err)
		if key != "" && errors.Is(err, ErrConflict) {
			// lost a race against a retry carrying the same key
			if existing, ferr := l.findByIdempotencyKey(ctx, key); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	l.alerts.EvaluateProducts(ctx, uow.Touched(), fmt.Sprintf("purchase #%d created", p.ID))
	return p, nil
}

// AnnulPurchase reverses the stock of an active purchase and marks it inactive.
// Annulling twice is a conflict, never a second decrement.
func (l *PurchaseLedger) AnnulPurchase(ctx context.Context, id uint) (*models.Purchase, error) {
	var p *models.Purchase
	uow, err := RunInUnitOfWork(ctx, l.db, func(uow *UnitOfWork) error {
		var err error
		p, err = l.lockPurchase(uow, id)
		if err != nil {
			return err
		}
		if p.IsAnnulled() {
			return ErrAlreadyAnnulled
		}
		uow.Reference(p.ID, models.StockMovementAnnulment)
		ids := p.ProductIDs()
		if err := l.stock.LockProducts(uow, ids); err != nil {
			return err
		}
		deltas := p.StockDeltas()
		for _, pid := range ids {
			if err := l.stock.DecrementStock(uow, pid, deltas[pid]); err != nil {
				return err
			}
		}
		return l.setActive(uow, p, false)
	})
	if err != nil {
		return nil, l.fail("AnnulPurchase", err)
	}

	l.alerts.EvaluateProducts(ctx, uow.Touched(), fmt.Sprintf("purchase #%d annulled", p.ID))
	return p, nil
}

// ReactivatePurchase is the inverse of AnnulPurchase: it re-applies the stock
// increments of an annulled purchase.
func (l *PurchaseLedger) ReactivatePurchase(ctx context.Context, id uint) (*models.Purchase, error) {
	var p *models.Purchase
	uow, err := RunInUnitOfWork(ctx, l.db, func(uow *UnitOfWork) error {
		var err error
		p, err = l.lockPurchase(uow, id)
		if err != nil {
			return err
		}
		if p.Active {
			return ErrAlreadyActive
		}
		uow.Reference(p.ID, models.StockMovementReactivation)
		if err := l.applyIncrements(uow, p); err != nil {
			return err
		}
		return l.setActive(uow, p, true)
	})
	if err != nil {
		return nil, l.fail("ReactivatePurchase", err)
	}

	l.alerts.EvaluateProducts(ctx, uow.Touched(), fmt.Sprintf("purchase #%d reactivated", p.ID))
	return p, nil
}

// UpdatePurchaseHeader changes the date and/or supplier of a purchase.
func (l *PurchaseLedger) UpdatePurchaseHeader(ctx context.Context, id uint, in UpdatePurchaseInput) (*models.Purchase, error) {
	v := make(validation.Violations)
	if in.SupplierID == nil && in.Date == nil {
		v["_"] = "nothing_to_update"
	}
	if in.SupplierID != nil {
		validation.RequiredID("supplier_id", *in.SupplierID, v)
	}
	if in.SupplierID != nil && v.Empty() {
		if err := l.checkSupplier(ctx, *in.SupplierID, v); err != nil {
			return nil, l.fail("UpdatePurchaseHeader", err)
		}
	}
	if !v.Empty() {
		return nil, &ValidationError{Violations: v}
	}

	var p *models.Purchase
	_, err := RunInUnitOfWork(ctx, l.db, func(uow *UnitOfWork) error {
		var err error
		p, err = l.lockPurchase(uow, id)
		if err != nil {
			return err
		}
		updates := map[string]any{}
		if in.SupplierID != nil {
			updates["supplier_id"] = *in.SupplierID
			p.SupplierID = *in.SupplierID
		}
		if in.Date != nil {
			updates["date"] = in.Date.UTC()
			p.Date = in.Date.UTC()
		}
		return uow.Tx().Model(&models.Purchase{}).Where("id = ?", p.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, l.fail("UpdatePurchaseHeader", err)
	}
	return p, nil
}

func (l *PurchaseLedger) validateCreate(ctx context.Context, in CreatePurchaseInput) error {
	v := make(validation.Violations)
	validation.Struct(in, v)
	for i, line := range in.Lines {
		if line.UnitPrice.IsNegative() {
			v[fmt.Sprintf("lines[%d].unit_price", i)] = "must_not_be_negative"
		}
	}
	if in.Total != nil && in.Total.IsNegative() {
		v["total"] = "must_not_be_negative"
	}
	if in.Tax != nil && in.Tax.IsNegative() {
		v["tax"] = "must_not_be_negative"
	}
	if !v.Empty() {
		return &ValidationError{Violations: v}
	}

	if err := l.checkSupplier(ctx, in.SupplierID, v); err != nil {
		return l.fail("CreatePurchase", err)
	}
	ids := make([]uint, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, line.ProductID)
	}
	missing, err := l.stock.MissingProducts(ctx, ids)
	if err != nil {
		return l.fail("CreatePurchase", err)
	}
	if len(missing) > 0 {
		gone := make(map[uint]bool, len(missing))
		for _, id := range missing {
			gone[id] = true
		}
		for i, line := range in.Lines {
			if gone[line.ProductID] {
				v[fmt.Sprintf("lines[%d].product_id", i)] = "not_found"
			}
		}
	}
	if !v.Empty() {
		return &ValidationError{Violations: v}
	}
	return nil
}

func (l *PurchaseLedger) checkSupplier(ctx context.Context, supplierID uint, v validation.Violations) error {
	ok, err := l.suppliers.Exists(ctx, supplierID)
	if err != nil {
		return err
	}
	if !ok {
		v["supplier_id"] = "not_found_or_inactive"
	}
	return nil
}

func (l *PurchaseLedger) buildPurchase(in CreatePurchaseInput, key string) *models.Purchase {
	p := &models.Purchase{
		SupplierID: in.SupplierID,
		Date:       l.now().UTC(),
		Active:     true,
	}
	if in.Date != nil {
		p.Date = in.Date.UTC()
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if key != "" {
		p.IdempotencyKey = &key
	}
	p.Lines = make([]models.PurchaseLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		p.Lines = append(p.Lines, models.PurchaseLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: models.RoundMoney(line.UnitPrice),
		})
	}
	models.ComputeTotals(p.Lines, in.Total, in.Tax, l.vatRate).Apply(p)
	return p
}

func (l *PurchaseLedger) applyIncrements(uow *UnitOfWork, p *models.Purchase) error {
	ids := p.ProductIDs()
	if err := l.stock.LockProducts(uow, ids); err != nil {
		return err
	}
	deltas := p.StockDeltas()
	for _, pid := range ids {
		if err := l.stock.IncrementStock(uow, pid, deltas[pid]); err != nil {
			return err
		}
	}
	return nil
}

// lockPurchase loads the purchase row FOR UPDATE together with its lines.
func (l *PurchaseLedger) lockPurchase(uow *UnitOfWork, id uint) (*models.Purchase, error) {
	var p models.Purchase
	err := uow.Tx().Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := uow.Tx().Where("purchase_id = ?", p.ID).Order("id").Find(&p.Lines).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *PurchaseLedger) setActive(uow *UnitOfWork, p *models.Purchase, active bool) error {
	res := uow.Tx().Model(&models.Purchase{}).
		Where("id = ? AND active = ?", p.ID, !active).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		if active {
			return ErrAlreadyActive
		}
		return ErrAlreadyAnnulled
	}
	p.Active = active
	return nil
}

func (l *PurchaseLedger) findByIdempotencyKey(ctx context.Context, key string) (*models.Purchase, error) {
	var p models.Purchase
	err := l.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Where("idempotency_key = ?", key).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// fail translates err for the caller and logs anything that is not plain
// caller error. Consistency violations are logged as defects.
func (l *PurchaseLedger) fail(op string, err error) error {
	out := translateStoreError(err)
	switch {
	case IsValidation(out), IsNotFound(out), IsConflict(out) && isDomainError(err):
		return out
	case IsConsistency(out):
		l.logger.WithFields(logrus.Fields{
			"module":   "services",
			"funcName": op,
			"defect":   true,
		}).WithError(err).Error("stock consistency violation, transaction rolled back")
		return out
	default:
		logging.LogError(l.logger, "services", op, "store", nil, err)
		return out
	}
}
