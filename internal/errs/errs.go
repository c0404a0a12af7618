// Package errs defines the error taxonomy shared by the journal components.
// Callers branch with errors.Is against the sentinels and errors.As against
// the concrete types when they need the details.
package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientLots = errors.New("insufficient lots")
	ErrInvalidState     = errors.New("invalid state")
)

// NotFoundError reports a missing transaction, account, stock or portfolio.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientLotsError is returned when a SELL asks for more shares than the
// open BUY lots preceding it can supply. Short positions are not supported.
type InsufficientLotsError struct {
	StockID   uint
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots for stock %d: requested %s, available %s",
		e.StockID, e.Requested, e.Available)
}

func (e *InsufficientLotsError) Is(target error) bool {
	return target == ErrInsufficientLots || target == ErrValidation
}

// InvalidStateError reports an operation rejected by the current state,
// such as deleting the default account.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InvalidState builds an InvalidStateError.
func InvalidState(format string, args ...any) error {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// FromGorm translates gorm.ErrRecordNotFound into a NotFoundError and wraps
// anything else with the given action.
func FromGorm(err error, entity string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(entity, key)
	}
	return fmt.Errorf("failed to load %s %v: %w", entity, key, err)
}
