/*
Package clinic implements the money side of a clinic front desk.

PURPOSE:
  Turns clinical and administrative events (a paid bill, a staff payout,
  a refund, a balance top-up, a cash spending) into consistent money
  movements across patient and staff accounts, computes staff compensation
  per rendered service, and records every movement in the day's report.

KEY CONCEPTS:
  - Accountable: anything that can hold a balance (patient, doctor, anonymous)
  - Payment: immutable money movement with one or more methods
  - MedicalService: rendered work with a frozen pricelist snapshot
  - Controller: settles payment intents atomically
  - Report: the append-only daily cash register

SEE ALSO:
  - generic/: balance-bearing accounts and the transaction log
  - analytics/: read-side aggregation over reports
*/
package clinic

import (
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES
// =============================================================================

// Role is the explicit kind of an account holder.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleAnonymous Role = "anonymous"
	RoleChecking  Role = "checking"
)

// AccountKind maps the role onto the generic account kind.
func (r Role) AccountKind() generic.AccountKind { return generic.AccountKind(r) }

// Accountable is the capability of holding a money balance.
// The balance itself lives in the generic.Account owned by the store.
type Accountable interface {
	AccountID() generic.AccountID
	Role() Role
}

// =============================================================================
// PERSON VARIANTS
// =============================================================================

type Patient struct {
	ID        generic.AccountID `json:"id"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Phone     string            `json:"phone,omitempty"`
}

func (p Patient) AccountID() generic.AccountID { return p.ID }
func (p Patient) Role() Role                   { return RolePatient }
func (p Patient) FullName() string             { return p.LastName + " " + p.FirstName }

// Doctor is a staff member who performs services or refers patients.
type Doctor struct {
	ID             generic.AccountID `json:"id"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Specialization string            `json:"specialization,omitempty"`

	// PerformerRate is the piece-rate share of a service price paid as
	// salary. Nil means the doctor is not paid per service.
	PerformerRate *decimal.Decimal `json:"performer_rate,omitempty"`
}

func (d Doctor) AccountID() generic.AccountID { return d.ID }
func (d Doctor) Role() Role                   { return RoleDoctor }
func (d Doctor) FullName() string             { return d.LastName + " " + d.FirstName }

// AnonymousUser is a walk-in payer without a patient card.
type AnonymousUser struct {
	ID generic.AccountID `json:"id"`
}

func (a AnonymousUser) AccountID() generic.AccountID { return a.ID }
func (a AnonymousUser) Role() Role                   { return RoleAnonymous }

// =============================================================================
// ACTOR
// =============================================================================

type AccessLevel string

const (
	AccessRegistrar AccessLevel = "registrar"
	AccessDoctor    AccessLevel = "doctor"
	AccessAdmin     AccessLevel = "admin"
	AccessSystem    AccessLevel = "system"
)

// User is the actor attached to every payment. Audit only; this package
// performs no authorization.
type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	AccessLevel AccessLevel `json:"access_level"`
}

// SystemUser signs payments the engine generates on its own.
var SystemUser = User{ID: "system", Name: "System", AccessLevel: AccessSystem}
