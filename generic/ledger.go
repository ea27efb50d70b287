/*
ledger.go - Append-only transaction log with materialized balances

PURPOSE:
  The Ledger is the source of truth for every balance change of every
  account. Payments assigned to a patient, compensation charged to a
  doctor, checking account movements: all are recorded here.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. CONSERVATION: account balance == sum of its transaction deltas
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A mistake is never edited away. An offsetting transaction (opposite
  sign) is appended; both stay in the ledger.

EXAMPLE FLOW:
  1. Service rendered, performer charged:  charge          +800
  2. Service cancelled:                    charge_reversal -800
  3. Doctor ledger: [+800, -800] = 0, history preserved

SEE ALSO:
  - store.go: Low-level persistence interface
  - clinic/charge.go: Writes charge and charge_reversal entries
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for all balance changes.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns the account history, chronologically.
	Transactions(ctx context.Context, id AccountID) ([]Transaction, error)

	// BalanceAt replays the history up to and including at.
	BalanceAt(ctx context.Context, id AccountID, at time.Time) (decimal.Decimal, error)

	// Verify checks the conservation invariant for one account.
	Verify(ctx context.Context, id AccountID) error
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, id AccountID) ([]Transaction, error) {
	return l.Store.Load(ctx, id)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, id AccountID, at time.Time) (decimal.Decimal, error) {
	txs, err := l.Store.Load(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return Replay(txs, at), nil
}

func (l *DefaultLedger) Verify(ctx context.Context, id AccountID) error {
	account, err := l.Store.Account(ctx, id)
	if err != nil {
		return err
	}
	txs, err := l.Store.Load(ctx, id)
	if err != nil {
		return err
	}
	replayed := Replay(txs, time.Time{})
	if !replayed.Equal(account.Balance) {
		return &ConservationError{AccountID: id, Stored: account.Balance, Replayed: replayed}
	}
	return nil
}

// Replay sums the deltas of txs effective at or before at.
// A zero at replays everything.
func Replay(txs []Transaction, at time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range txs {
		if !at.IsZero() && tx.EffectiveAt.After(at) {
			break
		}
		balance = balance.Add(tx.Delta)
	}
	return balance
}
