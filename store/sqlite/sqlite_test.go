package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day = generic.NewTimePoint(2025, time.March, 10)
	now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AppendMaterializesBalance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateAccount(ctx, generic.Account{ID: "pat-1", Kind: "patient"}))

	// GIVEN two transactions appended out of order
	require.NoError(t, store.Append(ctx, generic.Transaction{
		ID: "t2", AccountID: "pat-1", EffectiveAt: now.Add(time.Hour), Delta: decimal.RequireFromString("-50.5"),
		Type: generic.TxPayment, IdempotencyKey: "k2", Metadata: map[string]string{"purpose": "from_balance"},
	}))
	require.NoError(t, store.Append(ctx, generic.Transaction{
		ID: "t1", AccountID: "pat-1", EffectiveAt: now, Delta: decimal.NewFromInt(200),
		Type: generic.TxPayment, IdempotencyKey: "k1",
	}))

	// THEN the balance is exact and history is chronological
	account, err := store.Account(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, "149.5", account.Balance.String())

	txs, err := store.Load(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, generic.TransactionID("t1"), txs[0].ID)
	assert.Equal(t, "from_balance", txs[1].Metadata["purpose"])
	assert.True(t, txs[0].EffectiveAt.Equal(now))
	assert.NoError(t, generic.NewLedger(store).Verify(ctx, "pat-1"))

	ranged, err := store.LoadRange(ctx, "pat-1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ranged, 1)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateAccount(ctx, generic.Account{ID: "pat-1", Kind: "patient"}))

	assert.ErrorIs(t, store.CreateAccount(ctx, generic.Account{ID: "pat-1", Kind: "patient"}), generic.ErrAccountExists)

	_, err := store.Account(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
	assert.ErrorIs(t, store.Append(ctx, generic.Transaction{ID: "x", AccountID: "ghost"}), generic.ErrAccountNotFound)

	tx := generic.Transaction{ID: "a", AccountID: "pat-1", EffectiveAt: now, Delta: decimal.NewFromInt(1), Type: generic.TxPayment, IdempotencyKey: "same"}
	require.NoError(t, store.Append(ctx, tx))
	tx.ID = "b"
	assert.ErrorIs(t, store.Append(ctx, tx), generic.ErrDuplicateIdempotencyKey)

	account, _ := store.Account(ctx, "pat-1")
	assert.Equal(t, "1", account.Balance.String())

	_, err = store.Patient(ctx, "nobody")
	assert.ErrorIs(t, err, clinic.ErrNotFound)
	assert.ErrorIs(t, store.AppendPayment(ctx, day, clinic.Payment{ID: "p"}), clinic.ErrShiftClosed)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateAccount(ctx, generic.Account{ID: "pat-1", Kind: "patient"}))
	require.NoError(t, store.CreateReport(ctx, clinic.Report{Date: day, OpenedAt: now}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx clinic.Store) error {
		require.NoError(t, tx.Append(ctx, generic.Transaction{ID: "t", AccountID: "pat-1", EffectiveAt: now, Delta: decimal.NewFromInt(99), Type: generic.TxPayment}))

		// reads inside the transaction see its writes
		account, err := tx.Account(ctx, "pat-1")
		require.NoError(t, err)
		assert.Equal(t, "99", account.Balance.String())

		require.NoError(t, tx.AppendPayment(ctx, day, clinic.Payment{ID: "p"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	account, _ := store.Account(ctx, "pat-1")
	assert.True(t, account.Balance.IsZero())
	report, err := store.Report(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, report.Payments)
}

func TestStore_ReportsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	opener := clinic.User{ID: "reg-1", Name: "Desk", AccessLevel: clinic.AccessRegistrar}

	require.NoError(t, store.CreateReport(ctx, clinic.Report{Date: day.AddDays(-1), StartingCash: decimal.NewFromInt(10), OpenedBy: opener, OpenedAt: now}))
	require.NoError(t, store.CreateReport(ctx, clinic.Report{Date: day, OpenedBy: opener, OpenedAt: now}))
	assert.ErrorIs(t, store.CreateReport(ctx, clinic.Report{Date: day}), clinic.ErrShiftAlreadyOpen)

	subject := generic.AccountID("pat-1")
	payment := clinic.Payment{
		ID:        "pay-1",
		Date:      now,
		Purpose:   clinic.SpendingPurpose(clinic.SpendingRent, "march"),
		Methods:   []clinic.Method{{Type: clinic.MethodCash, Value: decimal.RequireFromString("-12.34")}},
		CreatedBy: opener,
		Subject:   &subject,
	}
	require.NoError(t, store.AppendPayment(ctx, day, payment))
	assert.ErrorIs(t, store.AppendPayment(ctx, day, payment), generic.ErrDuplicateIdempotencyKey)

	r, err := store.Report(ctx, day)
	require.NoError(t, err)
	require.Len(t, r.Payments, 1)
	assert.Equal(t, opener, r.OpenedBy)
	assert.Equal(t, "-12.34", r.CashBalance().String())
	assert.Equal(t, clinic.SpendingRent, r.Payments[0].Purpose.Category)

	got, err := store.Payment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, subject, *got.Subject)

	prev, err := store.LatestReportBefore(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "10", prev.StartingCash.String())

	period, _ := generic.PeriodFor(generic.PeriodWeek, day)
	reports, err := store.ReportsInRange(ctx, period)
	require.NoError(t, err)
	assert.Len(t, reports, 1, "previous day is a Sunday, outside the week")

	missing, err := store.Report(ctx, day.AddDays(1))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	rate := decimal.RequireFromString("0.35")

	require.NoError(t, store.SaveDoctor(ctx, clinic.Doctor{ID: "doc-b", LastName: "B", PerformerRate: &rate}))
	require.NoError(t, store.SaveDoctor(ctx, clinic.Doctor{ID: "doc-a", LastName: "A"}))
	require.NoError(t, store.SaveDoctor(ctx, clinic.Doctor{ID: "doc-a", LastName: "A2"}))

	doctors, err := store.ListDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "A2", doctors[0].LastName)
	assert.Equal(t, "0.35", doctors[1].PerformerRate.String())

	// saving a doctor opens its account
	_, err = store.Account(ctx, "doc-a")
	assert.NoError(t, err)

	fee := decimal.NewFromInt(150)
	item := clinic.PricelistItem{ID: "mri", Category: "radiology", Title: "MRI", Price: decimal.NewFromInt(3000), FixedAgentFee: &fee}
	require.NoError(t, store.SavePricelistItem(ctx, item))
	gotItem, err := store.PricelistItem(ctx, "mri")
	require.NoError(t, err)
	assert.Equal(t, "150", gotItem.FixedAgentFee.String())

	doc := doctors[1]
	s := clinic.Render("svc-1", item, &doc, nil, now)
	require.NoError(t, store.SaveService(ctx, s))
	gotService, err := store.Service(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, clinic.Uncharged, gotService.ChargeState)
	assert.Equal(t, "0.35", gotService.PerformerRate.String())
}

func TestStore_SettlementEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	clock := generic.NewFixedClock(now)
	actor := clinic.User{ID: "reg-1"}

	// GIVEN a patient, a 40% performer and an open shift
	rate := decimal.RequireFromString("0.4")
	require.NoError(t, store.SavePatient(ctx, clinic.Patient{ID: "pat-1"}))
	performer := clinic.Doctor{ID: "doc-1", PerformerRate: &rate}
	require.NoError(t, store.SaveDoctor(ctx, performer))
	item := clinic.PricelistItem{ID: "mri", Category: "radiology", Price: decimal.NewFromInt(2000)}
	s := clinic.Render("svc-1", item, &performer, nil, now)
	require.NoError(t, store.SaveService(ctx, s))
	patient := generic.AccountID("pat-1")
	require.NoError(t, store.SaveAppointment(ctx, clinic.Appointment{ID: "a-1", PatientID: &patient, ServiceIDs: []clinic.ServiceID{s.ID}}))
	_, err := clinic.NewShifts(store, clock).Open(ctx, actor)
	require.NoError(t, err)

	// WHEN the check is overpaid
	ctrl := clinic.NewController(store, clock, zerolog.Nop())
	check := clinic.Check{ID: "c-1", Services: []clinic.MedicalService{s}, AppointmentIDs: []string{"a-1"}}
	_, err = ctrl.Settle(ctx, clinic.MedicalServiceIntent{
		Check:   check,
		Methods: []clinic.Method{{Type: clinic.MethodCash, Value: decimal.NewFromInt(2500)}},
	}, actor)
	require.NoError(t, err)

	// THEN everything landed in SQLite consistently
	account, _ := store.Account(ctx, "pat-1")
	assert.Equal(t, "500", account.Balance.String())
	doctor, _ := store.Account(ctx, "doc-1")
	assert.Equal(t, "800", doctor.Balance.String())

	ledger := generic.NewLedger(store)
	assert.NoError(t, ledger.Verify(ctx, "pat-1"))
	assert.NoError(t, ledger.Verify(ctx, "doc-1"))

	report, err := store.Report(ctx, day)
	require.NoError(t, err)
	assert.Len(t, report.Payments, 2)
	assert.Equal(t, "2500", report.CashBalance().String())

	charged, _ := store.Service(ctx, "svc-1")
	assert.Equal(t, clinic.Charged, charged.ChargeState)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SavePatient(ctx, clinic.Patient{ID: "pat-1"}))
	require.NoError(t, store.Reset(ctx))

	patients, err := store.ListPatients(ctx)
	require.NoError(t, err)
	assert.Empty(t, patients)
}
