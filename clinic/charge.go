/*
charge.go - Staff compensation for rendered services

PURPOSE:
  Computes and applies the salary of a service's performer and the referral
  fee of its agent, and reverses both when a service is cancelled.

RULES:
  Salary (to the performer):
    only if a performer exists, a performer rate was frozen on the service,
    and the category is not laboratory.
    amount = FixedSalary if set, else price * performer rate

  Agent fee (to the agent):
    only if an agent exists.
    amount = FixedAgentFee if set, else price * 0.10

STATE MACHINE:
  uncharged --MakeCharges--> charged --CancelCharges--> uncharged

  Charging a charged service or cancelling an uncharged one fails with a
  ChargeStateError instead of silently drifting balances. Cancel recomputes
  the amounts from the same frozen snapshot, so charge + cancel nets to zero.

SINGLE WRITE PATH:
  Every compensation movement goes through charge(role, account, amount),
  which appends one ledger transaction tagged with the role. The role only
  matters for reporting; both roles add straight to the balance.
*/
package clinic

import (
	"context"
	"fmt"

	"github.com/frontdesk/ledger/generic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAgentFeeRate is the referral share when the catalog has no fixed fee.
var DefaultAgentFeeRate = decimal.New(10, -2)

// CompensationRole distinguishes the two kinds of charge.
type CompensationRole string

const (
	RolePerformer CompensationRole = "performer"
	RoleAgent     CompensationRole = "agent"
)

// =============================================================================
// AMOUNTS - Pure functions of the frozen snapshot
// =============================================================================

// Salary returns the performer's compensation and whether any is due.
func Salary(s MedicalService) (decimal.Decimal, bool) {
	if s.PerformerID == nil || s.PerformerRate == nil || s.Item.Category == CategoryLaboratory {
		return decimal.Zero, false
	}
	if s.Item.FixedSalary != nil {
		return *s.Item.FixedSalary, true
	}
	return s.Item.Price.Mul(*s.PerformerRate), true
}

// AgentFee returns the agent's compensation and whether any is due.
func AgentFee(s MedicalService) (decimal.Decimal, bool) {
	if s.AgentID == nil {
		return decimal.Zero, false
	}
	if s.Item.FixedAgentFee != nil {
		return *s.Item.FixedAgentFee, true
	}
	return s.Item.Price.Mul(DefaultAgentFeeRate), true
}

// =============================================================================
// CHARGE ENGINE
// =============================================================================

type ChargeEngine struct {
	NewID func() string
	Clock generic.Clock
}

func NewChargeEngine(clock generic.Clock) *ChargeEngine {
	return &ChargeEngine{NewID: uuid.NewString, Clock: clock}
}

// MakeCharges books salary and agent fee for s and marks it charged.
// s is updated in place and saved.
func (e *ChargeEngine) MakeCharges(ctx context.Context, store Store, s *MedicalService, actor User) error {
	if s.ChargeState == Charged {
		return &ChargeStateError{ServiceID: s.ID, State: s.ChargeState, Op: "charge"}
	}
	s.Charges++
	if err := e.apply(ctx, store, s, actor, decimal.NewFromInt(1), "charge"); err != nil {
		return err
	}
	s.ChargeState = Charged
	return store.SaveService(ctx, *s)
}

// CancelCharges reverses a previous MakeCharges exactly once.
func (e *ChargeEngine) CancelCharges(ctx context.Context, store Store, s *MedicalService, actor User) error {
	if s.ChargeState != Charged {
		return &ChargeStateError{ServiceID: s.ID, State: s.ChargeState, Op: "cancel"}
	}
	if err := e.apply(ctx, store, s, actor, decimal.NewFromInt(-1), "cancel"); err != nil {
		return err
	}
	s.ChargeState = Uncharged
	return store.SaveService(ctx, *s)
}

func (e *ChargeEngine) apply(ctx context.Context, store Store, s *MedicalService, actor User, sign decimal.Decimal, op string) error {
	if amount, ok := Salary(*s); ok {
		if err := e.charge(ctx, store, RolePerformer, *s.PerformerID, amount.Mul(sign), s, actor, op); err != nil {
			return err
		}
	}
	if amount, ok := AgentFee(*s); ok {
		if err := e.charge(ctx, store, RoleAgent, *s.AgentID, amount.Mul(sign), s, actor, op); err != nil {
			return err
		}
	}
	return nil
}

// charge is the only place compensation touches a staff balance.
func (e *ChargeEngine) charge(ctx context.Context, store Store, role CompensationRole, account generic.AccountID,
	amount decimal.Decimal, s *MedicalService, actor User, op string) error {
	if amount.IsZero() {
		return nil
	}
	txType := generic.TxCharge
	if op == "cancel" {
		txType = generic.TxChargeReversal
	}
	tx := generic.Transaction{
		ID:             generic.TransactionID(e.NewID()),
		AccountID:      account,
		EffectiveAt:    e.Clock.Now(),
		Delta:          amount,
		Type:           txType,
		Role:           string(role),
		ReferenceID:    string(s.ID),
		Reason:         fmt.Sprintf("%s %s: %s", op, role, s.Item.Title),
		IdempotencyKey: fmt.Sprintf("%s:%s:%s:%d", op, s.ID, role, s.Charges),
		CreatedBy:      actor.ID,
	}
	if err := generic.NewLedger(store).Append(ctx, tx); err != nil {
		return fmt.Errorf("%s %s for service %s: %w", op, role, s.ID, err)
	}
	return nil
}
