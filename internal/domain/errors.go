package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrSend          = errors.New("notification send failed")
	ErrFetch         = errors.New("alert fetch failed")
	ErrRunInProgress = errors.New("evaluation run already in progress")
)

// ValidationError describes a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Error kinds exposed to API callers.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindSend       = "send"
	KindFetch      = "fetch"
	KindInternal   = "internal"
)

// Kind returns the machine-readable kind of err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRunInProgress):
		return KindConflict
	case errors.Is(err, ErrSend):
		return KindSend
	case errors.Is(err, ErrFetch):
		return KindFetch
	default:
		return KindInternal
	}
}

// ValidateNewAlert checks the fields a store needs before inserting an alert.
// Product existence is left to the store's referential integrity.
func ValidateNewAlert(userID, productID uint, targetPrice, radiusKm decimal.Decimal) error {
	if userID == 0 {
		return &ValidationError{Field: "user_id", Reason: "must be a positive identifier"}
	}
	if productID == 0 {
		return &ValidationError{Field: "product_id", Reason: "must be a positive identifier"}
	}
	if !targetPrice.IsPositive() {
		return &ValidationError{Field: "target_price", Reason: "must be greater than zero"}
	}
	if radiusKm.IsNegative() {
		return &ValidationError{Field: "radius", Reason: "must not be negative"}
	}
	return nil
}
