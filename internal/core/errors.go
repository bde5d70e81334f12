package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the ledger wraps exactly one of
// these so callers can classify with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failed")
)

var (
	ErrInvalidAmount          = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrAmountOverflow         = fmt.Errorf("%w: balance out of range", ErrValidation)
	ErrInvalidGoal            = fmt.Errorf("%w: goal must be between 0 and the maximum amount", ErrValidation)
	ErrEmptyName              = fmt.Errorf("%w: empty name", ErrValidation)
	ErrNameTooLong            = fmt.Errorf("%w: name too long (max 100 characters)", ErrValidation)
	ErrDescriptionTooLong     = fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	ErrInvalidCategory        = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrInvalidTransactionType = fmt.Errorf("%w: invalid transaction type", ErrValidation)
	ErrInsufficientFunds      = fmt.Errorf("%w: insufficient funds", ErrValidation)
	ErrNotABill               = fmt.Errorf("%w: pocket is not a bill", ErrValidation)
	ErrAlreadyPaid            = fmt.Errorf("%w: bill already paid", ErrValidation)
	ErrSamePocket             = fmt.Errorf("%w: source and bill are the same pocket", ErrValidation)

	ErrPocketNotFound = fmt.Errorf("pocket %w", ErrNotFound)
)

// Kind returns a short label for the error category, used in logs and
// API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
