/*
controller.go - Settlement orchestration

PURPOSE:
  The Controller takes a payment intent, builds the payment, mutates the
  affected balances, triggers compensation charges, and appends the result
  to today's report. It is the only writer of money state.

FLOW (per intent kind):
  medical_service  resolve patient from the check appointments (a
                   requested patient must be one of them) -> adjust balance by (paid - check total)
                   -> assign payment -> charge services -> complete
                   appointments -> append to report
  doctor_payout    assign payment (balance += negative total) -> append
  refund           reject services already refunded or never paid by the
                   patient -> zero balance if asked -> link services to the refund
                   -> assign payment -> append. Charges are NOT cancelled
                   here; callers use CancelServiceCharges first.
  balance          assign payment (balance += signed total) -> append
  spending         append only

ATOMICITY:
  Each Settle runs inside one TxStore.WithTx and under the controller mutex.
  Balance update, history entry and report append commit together or not
  at all; two settlements never interleave.

FAILURES:
  Guard failures (no patient, no method) are logged and dropped: Settle
  returns (nil, nil) and nothing is written. Validation failures wrap
  ErrDeclined. Store errors roll the transaction back and are returned.
*/
package clinic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frontdesk/ledger/generic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Controller struct {
	store   TxStore
	builder *Builder
	charges *ChargeEngine
	clock   generic.Clock
	log     zerolog.Logger
	newID   func() string

	mu sync.Mutex
}

func NewController(store TxStore, clock generic.Clock, log zerolog.Logger) *Controller {
	return &Controller{
		store:   store,
		builder: NewBuilder(clock),
		charges: NewChargeEngine(clock),
		clock:   clock,
		log:     log.With().Str("component", "payments").Logger(),
		newID:   uuid.NewString,
	}
}

// Builder exposes the payment builder so callers can preview a payment.
func (c *Controller) Builder() *Builder { return c.builder }

// =============================================================================
// SETTLE
// =============================================================================

// Settle applies intent on behalf of actor and returns the recorded payment.
func (c *Controller) Settle(ctx context.Context, intent Intent, actor User) (*Payment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var settled *Payment
	err := c.store.WithTx(ctx, func(tx Store) error {
		day := generic.Today(c.clock)
		report, err := tx.Report(ctx, day)
		if err != nil {
			return err
		}
		if report == nil {
			return fmt.Errorf("%w: %s", ErrShiftClosed, day)
		}

		p, err := c.dispatch(ctx, tx, day, intent, actor)
		if err != nil {
			return err
		}
		settled = &p
		return nil
	})

	if errors.Is(err, ErrSkipped) {
		c.log.Warn().Err(err).Str("intent", string(intent.Kind())).Str("actor", actor.ID).Msg("settlement skipped")
		return nil, nil
	}
	if err != nil {
		c.log.Error().Err(err).Str("intent", string(intent.Kind())).Str("actor", actor.ID).Msg("settlement failed")
		return nil, err
	}

	c.log.Info().
		Str("payment_id", string(settled.ID)).
		Str("purpose", string(settled.Purpose.Kind)).
		Str("total", settled.Total().String()).
		Str("actor", actor.ID).
		Msg("payment settled")
	return settled, nil
}

func (c *Controller) dispatch(ctx context.Context, tx Store, day generic.TimePoint, intent Intent, actor User) (Payment, error) {
	switch in := intent.(type) {
	case MedicalServiceIntent:
		return c.settleMedicalService(ctx, tx, day, in, actor)
	case DoctorPayoutIntent:
		return c.settleDoctorPayout(ctx, tx, day, in, actor)
	case RefundIntent:
		return c.settleRefund(ctx, tx, day, in, actor)
	case BalanceIntent:
		return c.settleBalance(ctx, tx, day, in, actor)
	case SpendingIntent:
		return c.settleSpending(ctx, tx, day, in, actor)
	}
	return Payment{}, fmt.Errorf("%w: %T", ErrUnknownIntent, intent)
}

// =============================================================================
// INTENT HANDLERS
// =============================================================================

func (c *Controller) settleMedicalService(ctx context.Context, tx Store, day generic.TimePoint, in MedicalServiceIntent, actor User) (Payment, error) {
	for _, m := range in.Methods {
		if m.Type == MethodCredit {
			return Payment{}, fmt.Errorf("%w: credit is reserved for balance adjustments", ErrInvalidMethod)
		}
	}
	patient, err := c.patientOf(ctx, tx, in.Check, in.Patient)
	if err != nil {
		return Payment{}, err
	}
	in.Patient = &patient

	p, err := c.builder.Build(in, actor)
	if err != nil {
		return Payment{}, err
	}

	if delta := p.Total().Sub(in.Check.TotalPrice()); !delta.IsZero() {
		if err := c.adjustBalance(ctx, tx, day, *in.Patient, delta); err != nil {
			return Payment{}, err
		}
	}
	if err := c.assign(ctx, tx, *in.Patient, p); err != nil {
		return Payment{}, err
	}

	for _, id := range in.Check.ServiceIDs() {
		s, err := tx.Service(ctx, id)
		if err != nil {
			return Payment{}, err
		}
		if err := c.charges.MakeCharges(ctx, tx, &s, actor); err != nil {
			return Payment{}, err
		}
	}

	for _, id := range in.Check.AppointmentIDs {
		a, err := tx.Appointment(ctx, id)
		if err != nil {
			return Payment{}, err
		}
		a.Status = AppointmentCompleted
		if err := tx.SaveAppointment(ctx, a); err != nil {
			return Payment{}, err
		}
	}

	return p, tx.AppendPayment(ctx, day, p)
}

func (c *Controller) settleDoctorPayout(ctx context.Context, tx Store, day generic.TimePoint, in DoctorPayoutIntent, actor User) (Payment, error) {
	if _, err := tx.Doctor(ctx, in.Doctor); err != nil {
		return Payment{}, err
	}
	p, err := c.builder.Build(in, actor)
	if err != nil {
		return Payment{}, err
	}
	if err := c.assign(ctx, tx, in.Doctor, p); err != nil {
		return Payment{}, err
	}
	return p, tx.AppendPayment(ctx, day, p)
}

func (c *Controller) settleRefund(ctx context.Context, tx Store, day generic.TimePoint, in RefundIntent, actor User) (Payment, error) {
	account, err := tx.Account(ctx, in.Refund.PatientID)
	if err != nil {
		return Payment{}, err
	}
	in.Account = account

	services, err := c.refundable(ctx, tx, in.Refund)
	if err != nil {
		return Payment{}, err
	}

	p, err := c.builder.Build(in, actor)
	if err != nil {
		return Payment{}, err
	}

	if in.IncludeBalance && !account.Balance.IsZero() {
		if err := c.adjustBalance(ctx, tx, day, account.ID, account.Balance.Neg()); err != nil {
			return Payment{}, err
		}
	}

	if err := tx.SaveRefund(ctx, in.Refund); err != nil {
		return Payment{}, err
	}
	refundID := in.Refund.ID
	for _, s := range services {
		s.RefundID = &refundID
		if err := tx.SaveService(ctx, s); err != nil {
			return Payment{}, err
		}
	}

	if err := c.assign(ctx, tx, account.ID, p); err != nil {
		return Payment{}, err
	}
	return p, tx.AppendPayment(ctx, day, p)
}

func (c *Controller) settleBalance(ctx context.Context, tx Store, day generic.TimePoint, in BalanceIntent, actor User) (Payment, error) {
	if _, err := tx.Account(ctx, in.Account); err != nil {
		return Payment{}, err
	}
	p, err := c.builder.Build(in, actor)
	if err != nil {
		return Payment{}, err
	}
	if err := c.assign(ctx, tx, in.Account, p); err != nil {
		return Payment{}, err
	}
	return p, tx.AppendPayment(ctx, day, p)
}

func (c *Controller) settleSpending(ctx context.Context, tx Store, day generic.TimePoint, in SpendingIntent, actor User) (Payment, error) {
	p, err := c.builder.Build(in, actor)
	if err != nil {
		return Payment{}, err
	}
	return p, tx.AppendPayment(ctx, day, p)
}

// =============================================================================
// HELPERS
// =============================================================================

// patientOf returns the patient of the first check appointment that has one.
// A requested patient must be the patient of one of those appointments.
func (c *Controller) patientOf(ctx context.Context, tx Store, check Check, requested *generic.AccountID) (generic.AccountID, error) {
	var first *generic.AccountID
	for _, id := range check.AppointmentIDs {
		a, err := tx.Appointment(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return "", err
		}
		if a.PatientID == nil {
			continue
		}
		if requested == nil || *a.PatientID == *requested {
			return *a.PatientID, nil
		}
		if first == nil {
			first = a.PatientID
		}
	}
	if first != nil {
		return "", fmt.Errorf("%w: %s is not the patient of check %s", ErrNoPatient, *requested, check.ID)
	}
	return "", ErrNoPatient
}

// refundable loads the stored services of r and checks that each one was
// paid by r.PatientID (through r.CheckID when set) and is not refunded yet.
func (c *Controller) refundable(ctx context.Context, tx Store, r Refund) ([]MedicalService, error) {
	paid, err := c.paidServices(ctx, tx, r.PatientID, r.CheckID)
	if err != nil {
		return nil, err
	}

	services := make([]MedicalService, 0, len(r.Services))
	seen := make(map[ServiceID]bool, len(r.Services))
	for _, id := range r.ServiceIDs() {
		s, err := tx.Service(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.IsRefunded() || seen[id] {
			return nil, &RefundError{ServiceID: id, RefundID: s.RefundID, Err: ErrAlreadyRefunded}
		}
		if !paid[id] {
			return nil, &RefundError{ServiceID: id, Err: ErrNotPaidByPatient}
		}
		seen[id] = true
		services = append(services, s)
	}
	return services, nil
}

// paidServices collects the services of every medical_services payment in
// the patient's history, restricted to checkID when it is not empty.
func (c *Controller) paidServices(ctx context.Context, tx Store, patient generic.AccountID, checkID string) (map[ServiceID]bool, error) {
	txs, err := tx.Load(ctx, patient)
	if err != nil {
		return nil, err
	}
	paid := make(map[ServiceID]bool)
	for _, entry := range txs {
		if entry.Type != generic.TxPayment || entry.Reason != string(PurposeMedicalServices) {
			continue
		}
		p, err := tx.Payment(ctx, PaymentID(entry.ReferenceID))
		if err != nil {
			return nil, err
		}
		if checkID != "" && p.Purpose.CheckID != checkID {
			continue
		}
		for _, line := range p.Purpose.Services {
			paid[line.ServiceID] = true
		}
	}
	return paid, nil
}

// assign records p in the holder's history and applies its balance effect
// in the same write.
func (c *Controller) assign(ctx context.Context, tx Store, account generic.AccountID, p Payment) error {
	entry := generic.Transaction{
		ID:             generic.TransactionID(c.newID()),
		AccountID:      account,
		EffectiveAt:    p.Date,
		Delta:          p.BalanceEffect(),
		Type:           generic.TxPayment,
		ReferenceID:    string(p.ID),
		Reason:         string(p.Purpose.Kind),
		IdempotencyKey: "payment:" + string(p.ID) + ":" + string(account),
		Metadata:       map[string]string{"purpose": string(p.Purpose.Kind)},
		CreatedBy:      p.CreatedBy.ID,
	}
	if err := generic.NewLedger(tx).Append(ctx, entry); err != nil {
		return fmt.Errorf("assign payment %s to %s: %w", p.ID, account, err)
	}
	return nil
}

// adjustBalance is the silent balance adjustment: a system to_balance
// payment that moves the balance by delta, is kept in history and in the
// report, and never asks the user to confirm.
func (c *Controller) adjustBalance(ctx context.Context, tx Store, day generic.TimePoint, account generic.AccountID, delta decimal.Decimal) error {
	adj := c.builder.BalanceAdjustment(account, delta)
	if err := c.assign(ctx, tx, account, adj); err != nil {
		return err
	}
	c.log.Debug().Str("account", string(account)).Str("delta", delta.String()).Msg("balance adjusted")
	return tx.AppendPayment(ctx, day, adj)
}

// =============================================================================
// CHARGES - Explicit compensation operations
// =============================================================================

// ChargeServices books compensation for services outside of a payment.
func (c *Controller) ChargeServices(ctx context.Context, ids []ServiceID, actor User) error {
	return c.eachService(ctx, ids, func(tx Store, s *MedicalService) error {
		return c.charges.MakeCharges(ctx, tx, s, actor)
	})
}

// CancelServiceCharges reverses the compensation of charged services.
// Refund settlement does not do this on its own.
func (c *Controller) CancelServiceCharges(ctx context.Context, ids []ServiceID, actor User) error {
	return c.eachService(ctx, ids, func(tx Store, s *MedicalService) error {
		return c.charges.CancelCharges(ctx, tx, s, actor)
	})
}

func (c *Controller) eachService(ctx context.Context, ids []ServiceID, fn func(Store, *MedicalService) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.WithTx(ctx, func(tx Store) error {
		for _, id := range ids {
			s, err := tx.Service(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(tx, &s); err != nil {
				return err
			}
		}
		return nil
	})
}
