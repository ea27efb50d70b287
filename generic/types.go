/*
Package generic provides the core money ledger engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for keeping
  balances of accounts that receive money movements. Whether the account
  belongs to a patient, a doctor or the clinic's checking account, the same
  engine handles transaction logging, balance replay and period ranges.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal, never float64
  - Account: A balance-bearing entity with a materialized balance
  - Transaction: An immutable ledger entry recording a balance change
  - Account/Transaction IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only offset
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing account/transaction IDs
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  tx := generic.Transaction{
      AccountID: "patient-123",
      Delta:     generic.MustParseDecimal("200"),
      Type:      generic.TxPayment,
  }

SEE ALSO:
  - ledger.go: Transaction persistence and replay
  - period.go: Reporting ranges
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

// MustParseDecimal parses s and returns zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Sum adds all values. Sum() is zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string

// =============================================================================
// ACCOUNT - Anything that can hold a money balance
// =============================================================================

// AccountKind tells which kind of holder owns the account.
// Domain packages define the concrete values.
type AccountKind string

// Account carries the materialized balance of one holder.
//
// INVARIANT: Balance == sum(Delta) of every transaction appended for ID.
// Stores keep this true by applying the delta in the same write as the
// transaction; nothing else may change Balance.
type Account struct {
	ID        AccountID
	Kind      AccountKind
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION - Atomic change to an account balance
// =============================================================================

type TransactionType string

const (
	TxPayment        TransactionType = "payment"         // Payment assigned to the holder's history
	TxCharge         TransactionType = "charge"          // Compensation accrued for rendered work
	TxChargeReversal TransactionType = "charge_reversal" // Offsets a previous charge
	TxChecking       TransactionType = "checking"        // Business-level checking account movement
)

type Transaction struct {
	ID             TransactionID
	AccountID      AccountID
	EffectiveAt    time.Time
	Delta          decimal.Decimal
	Type           TransactionType
	Role           string // compensation role for charges ("performer", "agent")
	ReferenceID    string // payment or service that produced the entry
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}
