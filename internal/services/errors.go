package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/diewo77/go-purchases/validation"
	"gorm.io/gorm"
)

var (
	ErrPurchaseNotFound = errors.New("purchase_not_found")
	ErrProductNotFound  = errors.New("product_not_found")
	ErrAlreadyAnnulled  = errors.New("purchase_already_annulled")
	ErrAlreadyActive    = errors.New("purchase_already_active")
	ErrConflict         = errors.New("conflict")
	// ErrNegativeStock means a reversal would leave stock below zero. Stock is
	// never clamped: this points at an earlier invariant violation elsewhere.
	ErrNegativeStock = errors.New("stock_would_go_negative")
	ErrInternal      = errors.New("internal_error")
)

// ValidationError rejects caller input before any write happens.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Violations[k])
	}
	return "validation_failed: " + strings.Join(parts, ", ")
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrPurchaseNotFound) || errors.Is(err, ErrProductNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyAnnulled) || errors.Is(err, ErrAlreadyActive)
}

// IsConsistency reports stock invariant violations that need investigation.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrNegativeStock)
}

func isDomainError(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsConsistency(err) || errors.Is(err, ErrInternal)
}

// translateStoreError maps storage errors onto the service taxonomy.
// The raw error is not wrapped so driver types never leave this package.
// Check constraint violations are internal errors here; the stock store
// reports its own constraint as ErrNegativeStock before this runs.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrInternal, err.Error())
	default:
		return ErrInternal
	}
}
