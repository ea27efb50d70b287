package clinic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/frontdesk/ledger/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReport_CashBalance(t *testing.T) {
	r := clinic.Report{
		StartingCash: dec("100"),
		Payments: []clinic.Payment{
			{Methods: []clinic.Method{cash("300"), card("700")}},
			{Methods: []clinic.Method{cash("-50")}},
			{Methods: []clinic.Method{{Type: clinic.MethodCredit, Value: dec("999")}}},
		},
	}

	// cashBalance == startingCash + Σ cash method values
	assert.Equal(t, "350", r.CashBalance().String())
	assert.Equal(t, "700", r.MethodTotal(clinic.MethodCard).String())
}

func TestShifts_OpenCarriesCashForward(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := generic.NewFixedClock(registrarTime)
	shifts := clinic.NewShifts(store, clock)

	// GIVEN no previous report
	first, err := shifts.Open(ctx, registrar)
	require.NoError(t, err)
	assert.True(t, first.StartingCash.IsZero())

	// AND a day with cash movement
	require.NoError(t, store.AppendPayment(ctx, first.Date, clinic.Payment{ID: "p1", Methods: []clinic.Method{cash("450")}}))

	// WHEN two days later the shift is opened
	clock.Set(registrarTime.Add(48 * time.Hour))
	next, err := shifts.Open(ctx, registrar)
	require.NoError(t, err)

	// THEN it starts with the last ending cash
	assert.Equal(t, "450", next.StartingCash.String())
	assert.Equal(t, "2025-03-12", next.Date.String())
	assert.Equal(t, registrar, next.OpenedBy)
}

func TestShifts_OpenTwiceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	shifts := clinic.NewShifts(store, generic.NewFixedClock(registrarTime))

	first, err := shifts.Open(ctx, registrar)
	require.NoError(t, err)
	require.NoError(t, store.AppendPayment(ctx, first.Date, clinic.Payment{ID: "p1", Methods: []clinic.Method{cash("5")}}))

	again, err := shifts.Open(ctx, clinic.User{ID: "someone-else"})
	assert.ErrorIs(t, err, clinic.ErrShiftAlreadyOpen)
	require.NotNil(t, again)
	assert.Len(t, again.Payments, 1)
	assert.Equal(t, registrar, again.OpenedBy)
}

// scriptedReports answers report lookups from mock expectations keyed by day.
type scriptedReports struct {
	mock.Mock
}

func (s *scriptedReports) CreateReport(_ context.Context, r clinic.Report) error {
	return s.Called(r.Date.String()).Error(0)
}

func (s *scriptedReports) Report(_ context.Context, day generic.TimePoint) (*clinic.Report, error) {
	args := s.Called(day.String())
	r, _ := args.Get(0).(*clinic.Report)
	return r, args.Error(1)
}

func (s *scriptedReports) LatestReportBefore(_ context.Context, day generic.TimePoint) (*clinic.Report, error) {
	args := s.Called(day.String())
	r, _ := args.Get(0).(*clinic.Report)
	return r, args.Error(1)
}

func TestShifts_OpenLostRaceSurfacesLookupError(t *testing.T) {
	// GIVEN another opener creates today's report between our check and insert
	// AND re-reading it fails
	lookup := errors.New("db down")
	store := &scriptedReports{}
	store.On("Report", "2025-03-10").Return(nil, nil).Once()
	store.On("LatestReportBefore", "2025-03-10").Return(nil, nil).Once()
	store.On("CreateReport", "2025-03-10").Return(clinic.ErrShiftAlreadyOpen).Once()
	store.On("Report", "2025-03-10").Return(nil, lookup).Once()

	report, err := clinic.NewShifts(store, generic.NewFixedClock(registrarTime)).Open(context.Background(), registrar)

	// THEN the lookup error is returned, not a nil report
	assert.ErrorIs(t, err, lookup)
	assert.NotErrorIs(t, err, clinic.ErrShiftAlreadyOpen)
	assert.Nil(t, report)
	store.AssertExpectations(t)
}

func TestShifts_OpenLostRaceReturnsWinner(t *testing.T) {
	winner := &clinic.Report{Date: generic.DayOf(registrarTime), OpenedBy: clinic.User{ID: "other"}}
	store := &scriptedReports{}
	store.On("Report", "2025-03-10").Return(nil, nil).Once()
	store.On("LatestReportBefore", "2025-03-10").Return(nil, nil).Once()
	store.On("CreateReport", "2025-03-10").Return(clinic.ErrShiftAlreadyOpen).Once()
	store.On("Report", "2025-03-10").Return(winner, nil).Once()

	report, err := clinic.NewShifts(store, generic.NewFixedClock(registrarTime)).Open(context.Background(), registrar)

	assert.ErrorIs(t, err, clinic.ErrShiftAlreadyOpen)
	assert.Same(t, winner, report)
	store.AssertExpectations(t)
}

func TestShifts_CurrentAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	shifts := clinic.NewShifts(store, generic.NewFixedClock(registrarTime))

	_, err := shifts.Current(ctx)
	assert.ErrorIs(t, err, clinic.ErrShiftClosed)

	_, err = shifts.Open(ctx, registrar)
	require.NoError(t, err)

	r, err := shifts.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", r.Date.String())

	_, err = shifts.Get(ctx, generic.NewTimePoint(2025, time.March, 9))
	assert.ErrorIs(t, err, clinic.ErrShiftClosed)
}

func TestReport_ReconcilesAfterSettlements(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	check := d.bill(patient, d.render(xray(), nil, nil))

	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("600"), card("500")}}, registrar)
	require.NoError(t, err)
	_, err = d.ctrl.Settle(d.ctx, clinic.SpendingIntent{Category: clinic.SpendingSupplies, Method: cash("80")}, registrar)
	require.NoError(t, err)

	r := d.report()
	expected := r.StartingCash
	for _, p := range r.Payments {
		for _, m := range p.Methods {
			if m.Type == clinic.MethodCash {
				expected = expected.Add(m.Value)
			}
		}
	}
	assert.True(t, expected.Equal(r.CashBalance()))
	assert.True(t, decimal.NewFromInt(520).Equal(r.CashBalance()))
}
