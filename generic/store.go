/*
store.go - Persistence interface for accounts and transactions

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Implementations: store/memory (tests, demos) and store/sqlite.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist for transactions

MATERIALIZED BALANCE:
  Each Append applies tx.Delta to the account's Balance in the same write.
  Balance update and history entry can never be observed separately:
  a reader sees both or neither.

IDEMPOTENCY:
  A non-empty idempotency key may be written once. A second write is
  rejected with ErrDuplicateIdempotencyKey.

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - clinic/store.go: Domain store built on top of this one
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for account + transaction persistence (append-only)
// =============================================================================

type Store interface {
	// CreateAccount registers a holder with a zero balance.
	// Returns ErrAccountExists if the ID is taken.
	CreateAccount(ctx context.Context, account Account) error

	// Account returns the holder with its materialized balance.
	// Returns ErrAccountNotFound if missing.
	Account(ctx context.Context, id AccountID) (Account, error)

	// Append persists a transaction and applies its delta to the account.
	// Returns ErrAccountNotFound if the account is missing.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for an account, ordered by EffectiveAt.
	Load(ctx context.Context, id AccountID) ([]Transaction, error)

	// LoadRange returns transactions with EffectiveAt in [from, to).
	LoadRange(ctx context.Context, id AccountID, from, to time.Time) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
