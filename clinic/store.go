/*
store.go - Persistence interface for the clinic domain

PURPOSE:
  Extends generic.Store (accounts + append-only transactions) with the
  records the settlement engine reads and writes: people, the pricelist,
  rendered services, appointments, checks, refunds and daily reports.

APPEND-ONLY PARTS:
  - transactions (generic.Store)
  - report payments: AppendPayment only, never edited or removed

MUTABLE PARTS:
  People, catalog, services (charge state, refund link) and appointments
  (status) are saved whole with Save*.

ATOMICITY:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error nothing it wrote is kept. Settlement always runs inside WithTx.

SEE ALSO:
  - store/memory: in-memory implementation
  - store/sqlite: SQLite implementation
*/
package clinic

import (
	"context"

	"github.com/frontdesk/ledger/generic"
)

// Store is the full persistence surface. Lookups of missing records return
// an error wrapping ErrNotFound, except Report/LatestReportBefore which
// return (nil, nil).
type Store interface {
	generic.Store
	ReportStore

	SavePatient(ctx context.Context, p Patient) error
	Patient(ctx context.Context, id generic.AccountID) (Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)

	SaveDoctor(ctx context.Context, d Doctor) error
	Doctor(ctx context.Context, id generic.AccountID) (Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)

	SavePricelistItem(ctx context.Context, item PricelistItem) error
	PricelistItem(ctx context.Context, id string) (PricelistItem, error)
	ListPricelist(ctx context.Context) ([]PricelistItem, error)

	SaveService(ctx context.Context, s MedicalService) error
	Service(ctx context.Context, id ServiceID) (MedicalService, error)

	SaveAppointment(ctx context.Context, a Appointment) error
	Appointment(ctx context.Context, id string) (Appointment, error)

	SaveCheck(ctx context.Context, c Check) error
	Check(ctx context.Context, id string) (Check, error)

	SaveRefund(ctx context.Context, r Refund) error
	Refund(ctx context.Context, id string) (Refund, error)

	// AppendPayment adds p to the report of day. ErrShiftClosed if absent.
	AppendPayment(ctx context.Context, day generic.TimePoint, p Payment) error
	Payment(ctx context.Context, id PaymentID) (Payment, error)
	ReportsInRange(ctx context.Context, period generic.Period) ([]Report, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// EnsureAccount creates the account of holder if it doesn't exist yet.
func EnsureAccount(ctx context.Context, store generic.Store, holder Accountable) error {
	_, err := store.Account(ctx, holder.AccountID())
	if err == nil {
		return nil
	}
	if !generic.IsNotFound(err) {
		return err
	}
	return store.CreateAccount(ctx, generic.Account{
		ID:   holder.AccountID(),
		Kind: holder.Role().AccountKind(),
	})
}
