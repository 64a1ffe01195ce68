package inventory

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the inventory service.
var (
	// ErrInvalidFormat indicates a code that fails the format check.
	ErrInvalidFormat = errors.New("inventory: invalid gift code format")
	// ErrInvalidDenomination indicates a non-positive denomination.
	ErrInvalidDenomination = errors.New("inventory: denomination must be positive")
	// ErrDuplicateCode indicates the plaintext code already exists.
	ErrDuplicateCode = errors.New("inventory: duplicate gift code")
	// ErrNotFound indicates no code exists with the given id.
	ErrNotFound = errors.New("inventory: gift code not found")
	// ErrCodeExpired indicates the code's validity window has passed.
	ErrCodeExpired = errors.New("inventory: gift code expired")
	// ErrNotFoundOrUnchanged indicates an administrative update matched no row.
	ErrNotFoundOrUnchanged = errors.New("inventory: no matching code updated")
	// ErrInsufficientInventory indicates the greedy pass could not reach
	// the target amount. Allocation results carry this as their error text.
	ErrInsufficientInventory = errors.New("Insufficient gift codes available")
)

// InvalidStatusError indicates a redemption attempt against a code that is
// not in the ALLOCATED state.
type InvalidStatusError struct {
	Current string // The code's status at the time of the attempt.
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("inventory: cannot redeem code in status %s", e.Current)
}

// StoreError wraps an underlying persistence failure with the operation
// that triggered it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("inventory: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
