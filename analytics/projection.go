/*
projection.go - Per-person money statements

PURPOSE:
  Projects a MedicalService or a Payment into a display record
  {Date, Description, Value, Kind, Refunded} for a doctor or a patient.

PURITY:
  Every constructor is a pure function of its source object. Records are
  never stored: changing a rule here reclassifies the whole history the
  next time it is read, and projecting the same source twice gives the same
  record.

KINDS:
  Doctor:  performer_fee, agent_fee  (from a service)
           refill, payout            (from a payment, by sign)
  Patient: service                   (from a service)
           the payment purpose kind  (from a payment)
*/
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPerformerFee Kind = "performer_fee"
	KindAgentFee     Kind = "agent_fee"
	KindRefill       Kind = "refill"
	KindPayout       Kind = "payout"
	KindService      Kind = "service"
)

// Record is the common shape of both statement variants.
type Record struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	Kind        Kind            `json:"kind"`
	Refunded    bool            `json:"refunded"`
}

type DoctorMoneyTransaction struct {
	Record
}

type PatientMoneyTransaction struct {
	Record
}

// =============================================================================
// DOCTOR
// =============================================================================

// DoctorServiceTransaction projects the compensation of role for s. The
// second result is false when s owes nothing for that role.
func DoctorServiceTransaction(s clinic.MedicalService, role clinic.CompensationRole) (DoctorMoneyTransaction, bool) {
	var (
		amount decimal.Decimal
		ok     bool
		kind   Kind
	)
	switch role {
	case clinic.RolePerformer:
		amount, ok = clinic.Salary(s)
		kind = KindPerformerFee
	case clinic.RoleAgent:
		amount, ok = clinic.AgentFee(s)
		kind = KindAgentFee
	}
	if !ok {
		return DoctorMoneyTransaction{}, false
	}
	return DoctorMoneyTransaction{Record{
		Date:        s.RenderedAt,
		Description: s.Item.Title,
		Value:       amount,
		Kind:        kind,
		Refunded:    s.IsRefunded(),
	}}, true
}

// DoctorServiceTransactions projects every compensation s owes to doctor.
func DoctorServiceTransactions(s clinic.MedicalService, doctor generic.AccountID) []DoctorMoneyTransaction {
	var result []DoctorMoneyTransaction
	if s.PerformerID != nil && *s.PerformerID == doctor {
		if t, ok := DoctorServiceTransaction(s, clinic.RolePerformer); ok {
			result = append(result, t)
		}
	}
	if s.AgentID != nil && *s.AgentID == doctor {
		if t, ok := DoctorServiceTransaction(s, clinic.RoleAgent); ok {
			result = append(result, t)
		}
	}
	return result
}

// DoctorPaymentTransaction tags a payment refill or payout by its sign.
func DoctorPaymentTransaction(p clinic.Payment) DoctorMoneyTransaction {
	value := p.Total()
	kind := KindRefill
	if value.IsNegative() {
		kind = KindPayout
	}
	return DoctorMoneyTransaction{Record{
		Date:        p.Date,
		Description: describe(p),
		Value:       value,
		Kind:        kind,
		Refunded:    p.Purpose.RefundID != nil,
	}}
}

// =============================================================================
// PATIENT
// =============================================================================

// PatientServiceTransaction shows a rendered service as a cost to the
// patient.
func PatientServiceTransaction(s clinic.MedicalService) PatientMoneyTransaction {
	return PatientMoneyTransaction{Record{
		Date:        s.RenderedAt,
		Description: s.Item.Title,
		Value:       s.Price().Neg(),
		Kind:        KindService,
		Refunded:    s.IsRefunded(),
	}}
}

func PatientPaymentTransaction(p clinic.Payment) PatientMoneyTransaction {
	return PatientMoneyTransaction{Record{
		Date:        p.Date,
		Description: describe(p),
		Value:       p.Total(),
		Kind:        Kind(p.Purpose.Kind),
		Refunded:    p.Purpose.RefundID != nil,
	}}
}

func describe(p clinic.Payment) string {
	switch {
	case p.Purpose.Description != "":
		return p.Purpose.Description
	case p.System:
		return "balance adjustment"
	case p.Purpose.CheckID != "":
		return fmt.Sprintf("%s, check %s", p.Purpose.Kind, p.Purpose.CheckID)
	}
	return string(p.Purpose.Kind)
}

// =============================================================================
// HISTORY - Statements rebuilt from the transaction log
// =============================================================================

// HistorySource resolves the log entries of an account to their sources.
type HistorySource interface {
	Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error)
	Payment(ctx context.Context, id clinic.PaymentID) (clinic.Payment, error)
	Service(ctx context.Context, id clinic.ServiceID) (clinic.MedicalService, error)
}

// DoctorHistory returns the doctor's statement in log order. A charge
// reversal shows the original fee with the opposite sign.
func DoctorHistory(ctx context.Context, src HistorySource, doctor generic.AccountID) ([]DoctorMoneyTransaction, error) {
	txs, err := src.Load(ctx, doctor)
	if err != nil {
		return nil, err
	}

	var result []DoctorMoneyTransaction
	for _, tx := range txs {
		switch tx.Type {
		case generic.TxPayment:
			p, err := src.Payment(ctx, clinic.PaymentID(tx.ReferenceID))
			if err != nil {
				return nil, err
			}
			result = append(result, DoctorPaymentTransaction(p))

		case generic.TxCharge, generic.TxChargeReversal:
			s, err := src.Service(ctx, clinic.ServiceID(tx.ReferenceID))
			if err != nil {
				return nil, err
			}
			t, ok := DoctorServiceTransaction(s, clinic.CompensationRole(tx.Role))
			if !ok {
				continue
			}
			if tx.Type == generic.TxChargeReversal {
				t.Value = t.Value.Neg()
				t.Date = tx.EffectiveAt
			}
			result = append(result, t)
		}
	}
	return result, nil
}

// PatientHistory returns the patient's payments in log order, each
// medical_services payment followed by the services it paid for.
func PatientHistory(ctx context.Context, src HistorySource, patient generic.AccountID) ([]PatientMoneyTransaction, error) {
	txs, err := src.Load(ctx, patient)
	if err != nil {
		return nil, err
	}

	var result []PatientMoneyTransaction
	for _, tx := range txs {
		if tx.Type != generic.TxPayment {
			continue
		}
		p, err := src.Payment(ctx, clinic.PaymentID(tx.ReferenceID))
		if err != nil {
			return nil, err
		}
		result = append(result, PatientPaymentTransaction(p))

		if p.Purpose.Kind != clinic.PurposeMedicalServices {
			continue
		}
		for _, line := range p.Purpose.Services {
			s, err := src.Service(ctx, line.ServiceID)
			if err != nil {
				return nil, err
			}
			result = append(result, PatientServiceTransaction(s))
		}
	}
	return result, nil
}
