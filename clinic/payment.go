/*
payment.go - Immutable money movements

PURPOSE:
  A Payment records one money movement, split across one or more settlement
  methods, together with the typed reason it happened (its Purpose).

SIGN CONVENTION:
  Positive values are money received by the business or credited to the
  holder's benefit. Negative values are money paid out.

    medical_services   +  patient pays a check
    to_balance         +  top-up (or a system adjustment)
    from_balance       -  withdrawal from the balance
    refund             -  money returned for refunded services
    doctor_payout      -  salary / agent fee paid to a doctor
    spending           -  cash spent on a category (equipment, rent...)

METHODS:
  cash, card and bank_transfer move real money. credit is bookkeeping only:
  it moves a patient balance without touching the register, and is the
  method of every system-generated balance adjustment.

IMMUTABILITY:
  Once a payment is appended to a report it is never edited. Corrections are
  new payments. Every read hands out a Clone.
*/
package clinic

import (
	"time"

	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// METHOD
// =============================================================================

type MethodType string

const (
	MethodCash         MethodType = "cash"
	MethodCard         MethodType = "card"
	MethodBankTransfer MethodType = "bank_transfer"
	MethodCredit       MethodType = "credit"
)

// MoneyMethods are the method types that move real money.
var MoneyMethods = []MethodType{MethodCash, MethodCard, MethodBankTransfer}

// IsMoney is false only for credit.
func (t MethodType) IsMoney() bool { return t != MethodCredit }

func (t MethodType) Valid() bool {
	switch t {
	case MethodCash, MethodCard, MethodBankTransfer, MethodCredit:
		return true
	}
	return false
}

type Method struct {
	Type  MethodType      `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// =============================================================================
// PURPOSE - Closed tagged union
// =============================================================================

type PurposeKind string

const (
	PurposeMedicalServices PurposeKind = "medical_services"
	PurposeRefund          PurposeKind = "refund"
	PurposeToBalance       PurposeKind = "to_balance"
	PurposeFromBalance     PurposeKind = "from_balance"
	PurposeDoctorPayout    PurposeKind = "doctor_payout"
	PurposeSpending        PurposeKind = "spending"
)

type SpendingCategory string

const (
	SpendingEquipment SpendingCategory = "equipment"
	SpendingSupplies  SpendingCategory = "supplies"
	SpendingRent      SpendingCategory = "rent"
	SpendingUtilities SpendingCategory = "utilities"
	SpendingOther     SpendingCategory = "other"
)

// ServiceLine is the frozen view of a service carried by a payment.
type ServiceLine struct {
	ServiceID ServiceID     `json:"service_id"`
	Item      PricelistItem `json:"item"`
}

// Purpose says why money moved. Only the fields of its Kind are set.
type Purpose struct {
	Kind PurposeKind `json:"kind"`

	// medical_services, refund
	CheckID  string        `json:"check_id,omitempty"`
	RefundID *string       `json:"refund_id,omitempty"`
	Services []ServiceLine `json:"services,omitempty"`

	// spending
	Category    SpendingCategory `json:"category,omitempty"`
	Description string           `json:"description,omitempty"`
}

func MedicalServicesPurpose(check Check) Purpose {
	return Purpose{Kind: PurposeMedicalServices, CheckID: check.ID, Services: linesOf(check.Services)}
}

func RefundPurpose(refund Refund) Purpose {
	id := refund.ID
	return Purpose{Kind: PurposeRefund, CheckID: refund.CheckID, RefundID: &id, Services: linesOf(refund.Services)}
}

func ToBalancePurpose() Purpose    { return Purpose{Kind: PurposeToBalance} }
func FromBalancePurpose() Purpose  { return Purpose{Kind: PurposeFromBalance} }
func DoctorPayoutPurpose() Purpose { return Purpose{Kind: PurposeDoctorPayout} }

func SpendingPurpose(category SpendingCategory, description string) Purpose {
	return Purpose{Kind: PurposeSpending, Category: category, Description: description}
}

func linesOf(services []MedicalService) []ServiceLine {
	lines := make([]ServiceLine, len(services))
	for i, s := range services {
		lines[i] = ServiceLine{ServiceID: s.ID, Item: s.Item.Snapshot()}
	}
	return lines
}

// ExpenseCategory groups outflows for expense reports.
func (p Purpose) ExpenseCategory() string {
	switch p.Kind {
	case PurposeSpending:
		if p.Category == "" {
			return string(SpendingOther)
		}
		return string(p.Category)
	case PurposeDoctorPayout:
		return "salary"
	default:
		return string(p.Kind)
	}
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentID string

type Payment struct {
	ID        PaymentID          `json:"id"`
	Date      time.Time          `json:"date"`
	Purpose   Purpose            `json:"purpose"`
	Methods   []Method           `json:"methods"`
	CreatedBy User               `json:"created_by"`
	Subject   *generic.AccountID `json:"subject,omitempty"`

	// System marks payments the engine generated itself (balance
	// adjustments). They are never shown for confirmation.
	System bool `json:"system,omitempty"`
}

// Total is the sum of all method values.
func (p Payment) Total() decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Methods {
		total = total.Add(m.Value)
	}
	return total
}

// MoneyTotal is the sum of the methods that move real money.
func (p Payment) MoneyTotal() decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Methods {
		if m.Type.IsMoney() {
			total = total.Add(m.Value)
		}
	}
	return total
}

// MethodTotal sums the values of one method type.
func (p Payment) MethodTotal(t MethodType) decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Methods {
		if m.Type == t {
			total = total.Add(m.Value)
		}
	}
	return total
}

func (p Payment) CashTotal() decimal.Decimal { return p.MethodTotal(MethodCash) }

// BalanceEffect is how much the subject's balance moves when the payment is
// assigned. Settling a check or a refund is balance-neutral: any over- or
// under-payment is carried by a separate to_balance adjustment.
func (p Payment) BalanceEffect() decimal.Decimal {
	switch p.Purpose.Kind {
	case PurposeToBalance, PurposeFromBalance, PurposeDoctorPayout:
		return p.Total()
	}
	return decimal.Zero
}

// Clone returns a deep copy.
func (p Payment) Clone() Payment {
	c := p
	c.Methods = append([]Method(nil), p.Methods...)
	if p.Subject != nil {
		s := *p.Subject
		c.Subject = &s
	}
	if p.Purpose.RefundID != nil {
		r := *p.Purpose.RefundID
		c.Purpose.RefundID = &r
	}
	if p.Purpose.Services != nil {
		c.Purpose.Services = make([]ServiceLine, len(p.Purpose.Services))
		for i, line := range p.Purpose.Services {
			c.Purpose.Services[i] = ServiceLine{ServiceID: line.ServiceID, Item: line.Item.Snapshot()}
		}
	}
	return c
}
