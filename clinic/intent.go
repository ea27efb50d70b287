/*
intent.go - Payment construction

PURPOSE:
  A UI action describes what the user wants as an Intent. Builder turns an
  intent into a Payment deterministically: the purpose and the signed
  methods follow from the intent alone. Building has no side effects; the
  ID source and clock are injected.

INTENTS:
  MedicalServiceIntent   patient pays a check         methods as entered
  DoctorPayoutIntent     doctor is paid               -amount
  RefundIntent           services are refunded        refund total (- balance)
  BalanceIntent          top-up / withdrawal          +amount / -amount
  SpendingIntent         cash spent on a category     -amount

  Intents carry positive amounts; Build applies the sign.
*/
package clinic

import (
	"fmt"

	"github.com/frontdesk/ledger/generic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IntentKind string

const (
	IntentMedicalService IntentKind = "medical_service"
	IntentDoctorPayout   IntentKind = "doctor_payout"
	IntentRefund         IntentKind = "refund"
	IntentBalance        IntentKind = "balance"
	IntentSpending       IntentKind = "spending"
)

// Intent is a closed set; only this package implements it.
type Intent interface {
	Kind() IntentKind
	sealed()
}

type MedicalServiceIntent struct {
	Check   Check
	Methods []Method
	// Patient is the payer. The controller resolves it from the check's
	// appointments; when set it must be one of their patients.
	Patient *generic.AccountID
}

type DoctorPayoutIntent struct {
	Doctor generic.AccountID
	Method Method
}

type RefundIntent struct {
	Refund Refund
	// Account is the patient's account as of settlement.
	Account        generic.Account
	Method         MethodType
	DiscountRate   decimal.Decimal
	IncludeBalance bool
}

type BalanceDirection string

const (
	BalanceIn  BalanceDirection = "in"
	BalanceOut BalanceDirection = "out"
)

type BalanceIntent struct {
	Account   generic.AccountID
	Method    Method
	Direction BalanceDirection
}

type SpendingIntent struct {
	Category    SpendingCategory
	Description string
	Method      Method
}

func (MedicalServiceIntent) Kind() IntentKind { return IntentMedicalService }
func (DoctorPayoutIntent) Kind() IntentKind   { return IntentDoctorPayout }
func (RefundIntent) Kind() IntentKind         { return IntentRefund }
func (BalanceIntent) Kind() IntentKind        { return IntentBalance }
func (SpendingIntent) Kind() IntentKind       { return IntentSpending }

func (MedicalServiceIntent) sealed() {}
func (DoctorPayoutIntent) sealed()   {}
func (RefundIntent) sealed()         {}
func (BalanceIntent) sealed()        {}
func (SpendingIntent) sealed()       {}

// =============================================================================
// BUILDER
// =============================================================================

type Builder struct {
	NewID func() string
	Clock generic.Clock
}

func NewBuilder(clock generic.Clock) *Builder {
	return &Builder{NewID: uuid.NewString, Clock: clock}
}

// Build returns the payment an intent describes.
// ErrNoMethod is a guard failure; ErrDeclined-wrapped errors are validation.
func (b *Builder) Build(intent Intent, actor User) (Payment, error) {
	p := Payment{
		ID:        PaymentID(b.NewID()),
		Date:      b.Clock.Now(),
		CreatedBy: actor,
	}

	switch in := intent.(type) {
	case MedicalServiceIntent:
		if len(in.Methods) == 0 {
			return Payment{}, ErrNoMethod
		}
		for _, m := range in.Methods {
			if !m.Type.Valid() || m.Value.IsNegative() {
				return Payment{}, fmt.Errorf("%w: %s %s", ErrInvalidMethod, m.Type, m.Value)
			}
		}
		p.Purpose = MedicalServicesPurpose(in.Check)
		p.Methods = append([]Method(nil), in.Methods...)
		p.Subject = in.Patient

	case DoctorPayoutIntent:
		m, err := outflow(in.Method)
		if err != nil {
			return Payment{}, err
		}
		p.Purpose = DoctorPayoutPurpose()
		p.Methods = []Method{m}
		p.Subject = &in.Doctor

	case RefundIntent:
		if !in.Method.Valid() {
			return Payment{}, ErrNoMethod
		}
		amount := in.Refund.TotalAmount(in.DiscountRate)
		if in.IncludeBalance {
			amount = amount.Sub(in.Account.Balance)
		}
		subject := in.Account.ID
		p.Purpose = RefundPurpose(in.Refund)
		p.Methods = []Method{{Type: in.Method, Value: amount}}
		p.Subject = &subject

	case BalanceIntent:
		var (
			m   Method
			err error
		)
		switch in.Direction {
		case BalanceIn:
			m, err = inflow(in.Method)
			p.Purpose = ToBalancePurpose()
		case BalanceOut:
			m, err = outflow(in.Method)
			p.Purpose = FromBalancePurpose()
		default:
			return Payment{}, fmt.Errorf("%w: balance direction %q", ErrDeclined, in.Direction)
		}
		if err != nil {
			return Payment{}, err
		}
		p.Methods = []Method{m}
		p.Subject = &in.Account

	case SpendingIntent:
		m, err := outflow(in.Method)
		if err != nil {
			return Payment{}, err
		}
		p.Purpose = SpendingPurpose(in.Category, in.Description)
		p.Methods = []Method{m}

	default:
		return Payment{}, fmt.Errorf("%w: %T", ErrUnknownIntent, intent)
	}
	return p, nil
}

// BalanceAdjustment builds the system payment that moves a balance by delta
// without moving money.
func (b *Builder) BalanceAdjustment(account generic.AccountID, delta decimal.Decimal) Payment {
	return Payment{
		ID:        PaymentID(b.NewID()),
		Date:      b.Clock.Now(),
		Purpose:   ToBalancePurpose(),
		Methods:   []Method{{Type: MethodCredit, Value: delta}},
		CreatedBy: SystemUser,
		Subject:   &account,
		System:    true,
	}
}

func inflow(m Method) (Method, error) {
	if err := checkAmount(m); err != nil {
		return Method{}, err
	}
	return m, nil
}

func outflow(m Method) (Method, error) {
	if err := checkAmount(m); err != nil {
		return Method{}, err
	}
	return Method{Type: m.Type, Value: m.Value.Neg()}, nil
}

func checkAmount(m Method) error {
	if m.Type == "" {
		return ErrNoMethod
	}
	if !m.Type.Valid() || m.Value.IsNegative() {
		return fmt.Errorf("%w: %s %s", ErrInvalidMethod, m.Type, m.Value)
	}
	if m.Value.IsZero() {
		return ErrZeroValue
	}
	return nil
}
