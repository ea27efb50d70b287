/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Transaction persistence failures
  2. Validation errors - Malformed input (periods, amounts)
  3. Integrity errors - Materialized balance drifted from the log

USAGE:
  if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
      // already applied, nothing to do
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - clinic/errors.go: Domain errors built on top of these
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account twice.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidPeriod is returned when a period is malformed.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrBalanceDrift is returned when a materialized balance disagrees with
	// the replayed transaction log.
	ErrBalanceDrift = errors.New("balance does not match transaction log")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConservationError reports an account whose stored balance differs from the
// sum of its transactions.
type ConservationError struct {
	AccountID AccountID
	Stored    decimal.Decimal
	Replayed  decimal.Decimal
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("account %s: stored balance %s, replayed %s",
		e.AccountID, e.Stored, e.Replayed)
}

func (e *ConservationError) Unwrap() error {
	return ErrBalanceDrift
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrAccountExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
