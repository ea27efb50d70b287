package clinic

import (
	"context"
	"fmt"

	"github.com/frontdesk/ledger/generic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CHECKING ACCOUNT - Business-level ledger, independent of people
// =============================================================================

type CheckingPurpose string

const (
	CheckingDeposit        CheckingPurpose = "deposit"
	CheckingWithdrawal     CheckingPurpose = "withdrawal"
	CheckingCashCollection CheckingPurpose = "cash_collection"
	CheckingRent           CheckingPurpose = "rent"
	CheckingTax            CheckingPurpose = "tax"
	CheckingSalary         CheckingPurpose = "salary"
	CheckingOther          CheckingPurpose = "other"
)

func (p CheckingPurpose) Valid() bool {
	switch p {
	case CheckingDeposit, CheckingWithdrawal, CheckingCashCollection,
		CheckingRent, CheckingTax, CheckingSalary, CheckingOther:
		return true
	}
	return false
}

// CheckingAccount is the clinic's own account. Its balance is the running
// sum of its transactions and changes only through AssignTransaction.
type CheckingAccount struct {
	ID    generic.AccountID
	store generic.Store
	clock generic.Clock
	newID func() string
}

func (c *CheckingAccount) AccountID() generic.AccountID { return c.ID }
func (c *CheckingAccount) Role() Role                   { return RoleChecking }

// OpenCheckingAccount returns the account, creating it on first use.
func OpenCheckingAccount(ctx context.Context, store generic.Store, clock generic.Clock, id generic.AccountID) (*CheckingAccount, error) {
	c := &CheckingAccount{ID: id, store: store, clock: clock, newID: uuid.NewString}
	if err := EnsureAccount(ctx, store, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AssignTransaction records a signed movement with its purpose and optional
// counterparty.
func (c *CheckingAccount) AssignTransaction(ctx context.Context, purpose CheckingPurpose, amount decimal.Decimal,
	counterparty string, actor User) (generic.Transaction, error) {
	if !purpose.Valid() {
		return generic.Transaction{}, fmt.Errorf("%w: checking purpose %q", ErrDeclined, purpose)
	}
	if amount.IsZero() {
		return generic.Transaction{}, ErrZeroValue
	}
	id := c.newID()
	tx := generic.Transaction{
		ID:             generic.TransactionID(id),
		AccountID:      c.ID,
		EffectiveAt:    c.clock.Now(),
		Delta:          amount,
		Type:           generic.TxChecking,
		Reason:         string(purpose),
		IdempotencyKey: "checking:" + id,
		Metadata:       map[string]string{"purpose": string(purpose)},
		CreatedBy:      actor.ID,
	}
	if counterparty != "" {
		tx.Metadata["counterparty"] = counterparty
	}
	if err := generic.NewLedger(c.store).Append(ctx, tx); err != nil {
		return generic.Transaction{}, err
	}
	return tx, nil
}

func (c *CheckingAccount) Balance(ctx context.Context) (decimal.Decimal, error) {
	account, err := c.store.Account(ctx, c.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (c *CheckingAccount) Transactions(ctx context.Context) ([]generic.Transaction, error) {
	return c.store.Load(ctx, c.ID)
}
