package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
)

// Error kinds. Every error returned by the services wraps exactly one of
// these so callers can classify with errors.Is.
var (
	// ErrNotFound is returned when a brand or card does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input violates a business rule
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an entity with the same identity already exists
	ErrConflict = errors.New("conflict")

	// ErrStateConflict is returned when the card's status forbids the operation
	ErrStateConflict = errors.New("state conflict")

	// ErrAuthentication is returned when a PIN check fails
	ErrAuthentication = errors.New("authentication failed")

	// ErrExhausted is returned when identifier allocation gives up
	ErrExhausted = errors.New("exhausted")
)

var (
	ErrBrandNotFound = fmt.Errorf("%w: brand not found", ErrNotFound)
	ErrCardNotFound  = fmt.Errorf("%w: card not found", ErrNotFound)
	ErrBrandInactive = fmt.Errorf("%w: brand is not active", ErrNotFound)

	ErrBrandExists = fmt.Errorf("%w: brand with this name already exists", ErrConflict)

	ErrInvalidAmountBounds   = fmt.Errorf("%w: min_amount must be less than max_amount", ErrValidation)
	ErrAmountOutOfRange      = fmt.Errorf("%w: amount outside brand limits", ErrValidation)
	ErrInvalidAmount         = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountPrecision       = fmt.Errorf("%w: amount must have at most 2 decimal places and 10 integer digits", ErrValidation)
	ErrZeroAdjustment        = fmt.Errorf("%w: adjustment amount must be non-zero", ErrValidation)
	ErrInvalidName           = fmt.Errorf("%w: name must contain letters or digits", ErrValidation)
	ErrInvalidExpiry         = fmt.Errorf("%w: expiry_months must be between 1 and 120", ErrValidation)
	ErrInvalidRequest        = fmt.Errorf("%w: invalid request", ErrValidation)
	ErrExceedsInitialBalance = fmt.Errorf("%w: balance cannot exceed initial balance", ErrValidation)

	ErrInvalidPIN = fmt.Errorf("%w: invalid PIN", ErrAuthentication)
	ErrPINLocked  = fmt.Errorf("%w: too many invalid PIN attempts", ErrAuthentication)

	ErrCardExpired        = fmt.Errorf("%w: expired", ErrStateConflict)
	ErrCannotReactivate   = fmt.Errorf("%w: cannot reactivate a depleted card", ErrStateConflict)
	ErrPastExpiry         = fmt.Errorf("%w: cannot reactivate a card past its expiry date", ErrStateConflict)
	ErrInvalidTransition  = fmt.Errorf("%w: status transition not allowed", ErrStateConflict)
	ErrConcurrentModified = fmt.Errorf("%w: card was modified concurrently", ErrConflict)

	ErrIdentifierExhausted = fmt.Errorf("%w: failed to allocate unique identifier", ErrExhausted)

	// ErrDuplicateIdentifier is returned by the card repository when an
	// insert hits a unique constraint on card_number or card_code.
	ErrDuplicateIdentifier = errors.New("duplicate card identifier")

	// ErrBrandInUse is returned by the brand repository when a delete is
	// blocked by cards that still reference the brand.
	ErrBrandInUse = errors.New("brand is referenced by cards")
)

// InsufficientBalanceError reports a redemption larger than the card balance.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrValidation }

// CardStatusError reports an operation attempted on a card in the wrong status.
type CardStatusError struct {
	Status model.CardStatus
}

func (e *CardStatusError) Error() string {
	return fmt.Sprintf("card is %s", e.Status)
}

func (e *CardStatusError) Unwrap() error { return ErrStateConflict }
