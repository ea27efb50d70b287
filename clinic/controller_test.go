/*
controller_test.go - Settlement behavior

Covers the five reference scenarios plus the failure taxonomy:
guard no-ops, declined validation, closed shift and persistence rollback.
Every test that moves money ends by checking balance conservation.
*/
package clinic_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/frontdesk/ledger/analytics"
	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/frontdesk/ledger/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestSettle_Overpayment(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	check := d.bill(patient, d.render(xray(), nil, nil))

	// WHEN a 1,000 bill is paid with 1,200 cash
	p, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1200")}}, registrar)
	require.NoError(t, err)
	require.NotNil(t, p)

	// THEN the patient balance is +200 through a silent adjustment
	assert.Equal(t, "200", d.balance(patient).String())

	report := d.report()
	require.Len(t, report.Payments, 2)
	adj := report.Payments[0]
	assert.True(t, adj.System)
	assert.Equal(t, clinic.PurposeToBalance, adj.Purpose.Kind)
	assert.Equal(t, "200", adj.MethodTotal(clinic.MethodCredit).String())
	assert.Equal(t, clinic.SystemUser, adj.CreatedBy)

	// AND the register grew by exactly the cash paid
	assert.Equal(t, "1200", report.CashBalance().String())
	assert.Equal(t, p.ID, report.Payments[1].ID)
	d.verify(patient)
}

func TestSettle_ExactPaymentHasNoAdjustment(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	check := d.bill(patient, d.render(xray(), nil, nil))

	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("400"), card("600")}}, registrar)
	require.NoError(t, err)

	assert.True(t, d.balance(patient).IsZero())
	assert.Len(t, d.report().Payments, 1)
}

func TestSettle_ChargesServicesAndCompletesAppointments(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	performer := d.doctor("doc-1", ptr(dec("0.4")))
	agent := d.doctor("doc-2", nil)
	mri := clinic.PricelistItem{ID: "mri", Category: "radiology", Price: dec("2000")}
	s := d.render(mri, &performer, &agent)
	check := d.bill(patient, s)

	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("2000")}}, registrar)
	require.NoError(t, err)

	assert.Equal(t, "800", d.balance("doc-1").String())
	assert.Equal(t, "200", d.balance("doc-2").String())
	assert.Equal(t, clinic.Charged, d.service(s.ID).ChargeState)

	appt, err := d.store.Appointment(d.ctx, check.AppointmentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, clinic.AppointmentCompleted, appt.Status)
	d.verify(patient, "doc-1", "doc-2")
}

func TestSettle_RefundIncludingNegativeBalance(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	performer := d.doctor("doc-1", ptr(dec("0.4")))
	s := d.render(xray(), &performer, nil)
	check := d.bill(patient, s)

	// GIVEN a patient who underpaid by 300
	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("700")}}, registrar)
	require.NoError(t, err)
	require.Equal(t, "-300", d.balance(patient).String())

	// WHEN the service is refunded including the balance
	refund := clinic.Refund{ID: "ref-1", CheckID: check.ID, PatientID: patient, Services: []clinic.MedicalService{d.service(s.ID)}}
	p, err := d.ctrl.Settle(d.ctx, clinic.RefundIntent{
		Refund:         refund,
		Method:         clinic.MethodCash,
		DiscountRate:   check.DiscountRate(),
		IncludeBalance: true,
	}, registrar)
	require.NoError(t, err)

	// THEN the balance is zeroed by a +300 adjustment before the refund
	assert.True(t, d.balance(patient).IsZero())
	report := d.report()
	require.Len(t, report.Payments, 4)
	adj := report.Payments[2]
	assert.True(t, adj.System)
	assert.Equal(t, "300", adj.Total().String())

	// AND only what was actually paid goes back
	assert.Equal(t, clinic.PurposeRefund, p.Purpose.Kind)
	assert.Equal(t, "-700", p.Total().String())
	assert.True(t, report.CashBalance().IsZero())

	// AND the service is linked to the refund but its charges stay
	refunded := d.service(s.ID)
	assert.True(t, refunded.IsRefunded())
	assert.Equal(t, clinic.Charged, refunded.ChargeState)
	assert.Equal(t, "400", d.balance("doc-1").String())

	// Cancelling charges is an explicit, separate step
	require.NoError(t, d.ctrl.CancelServiceCharges(d.ctx, []clinic.ServiceID{s.ID}, registrar))
	assert.True(t, d.balance("doc-1").IsZero())
	d.verify(patient, "doc-1")
}

func TestSettle_RefundWithoutBalance(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	s := d.render(xray(), nil, nil)
	check := d.bill(patient, s)
	check.Discount = dec("100")

	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("900")}}, registrar)
	require.NoError(t, err)

	refund := clinic.Refund{ID: "ref-1", PatientID: patient, Services: []clinic.MedicalService{s}}
	p, err := d.ctrl.Settle(d.ctx, clinic.RefundIntent{Refund: refund, Method: clinic.MethodCash, DiscountRate: check.DiscountRate()}, registrar)
	require.NoError(t, err)

	// 0.1 * 1000 - 1000
	assert.Equal(t, "-900", p.Total().String())
	assert.True(t, d.balance(patient).IsZero())
}

func TestSettle_RefundTwiceIsRejected(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	s := d.render(xray(), nil, nil)
	check := d.bill(patient, s)

	// GIVEN a paid and refunded X-ray
	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1000")}}, registrar)
	require.NoError(t, err)
	first := clinic.Refund{ID: "ref-1", CheckID: check.ID, PatientID: patient, Services: []clinic.MedicalService{s}}
	_, err = d.ctrl.Settle(d.ctx, clinic.RefundIntent{Refund: first, Method: clinic.MethodCash, DiscountRate: check.DiscountRate()}, registrar)
	require.NoError(t, err)

	// WHEN the same service is refunded again under another id
	second := clinic.Refund{ID: "ref-2", CheckID: check.ID, PatientID: patient, Services: []clinic.MedicalService{s}}
	p, err := d.ctrl.Settle(d.ctx, clinic.RefundIntent{Refund: second, Method: clinic.MethodCash, DiscountRate: check.DiscountRate()}, registrar)

	// THEN it is rejected and the first refund link stands
	assert.Nil(t, p)
	assert.ErrorIs(t, err, clinic.ErrAlreadyRefunded)
	assert.True(t, clinic.IsClientError(err))
	var refundErr *clinic.RefundError
	require.ErrorAs(t, err, &refundErr)
	assert.Equal(t, s.ID, refundErr.ServiceID)

	refunded := d.service(s.ID)
	require.NotNil(t, refunded.RefundID)
	assert.Equal(t, "ref-1", *refunded.RefundID)

	// AND the cash went out once
	report := d.report()
	assert.Len(t, report.Payments, 2)
	assert.True(t, report.CashBalance().IsZero())
	_, err = d.store.Refund(d.ctx, "ref-2")
	assert.True(t, clinic.IsNotFound(err))
	d.verify(patient)
}

func TestSettle_RefundRepeatedServiceInOneRefund(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	s := d.render(xray(), nil, nil)
	check := d.bill(patient, s)
	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1000")}}, registrar)
	require.NoError(t, err)

	refund := clinic.Refund{ID: "ref-1", PatientID: patient, Services: []clinic.MedicalService{s, s}}
	p, err := d.ctrl.Settle(d.ctx, clinic.RefundIntent{Refund: refund, Method: clinic.MethodCash, DiscountRate: check.DiscountRate()}, registrar)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, clinic.ErrAlreadyRefunded)
	assert.False(t, d.service(s.ID).IsRefunded())
	assert.Len(t, d.report().Payments, 1)
}

func TestSettle_RefundRequiresPaymentByThePatient(t *testing.T) {
	d := newDesk(t)
	owner := d.patient("pat-1")
	stranger := d.patient("pat-2")

	paid := d.render(xray(), nil, nil)
	paidCheck := d.bill(owner, paid)
	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: paidCheck, Methods: []clinic.Method{cash("1000")}}, registrar)
	require.NoError(t, err)

	other := d.render(xray(), nil, nil)
	otherCheck := d.bill(owner, other)
	_, err = d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: otherCheck, Methods: []clinic.Method{card("1000")}}, registrar)
	require.NoError(t, err)

	unpaid := d.render(xray(), nil, nil)
	d.bill(owner, unpaid)

	tests := []struct {
		name    string
		refund  clinic.Refund
		service clinic.ServiceID
	}{
		{"another patient", clinic.Refund{ID: "r-stranger", PatientID: stranger, Services: []clinic.MedicalService{paid}}, paid.ID},
		{"never paid", clinic.Refund{ID: "r-unpaid", PatientID: owner, Services: []clinic.MedicalService{unpaid}}, unpaid.ID},
		{"paid through another check", clinic.Refund{ID: "r-check", CheckID: otherCheck.ID, PatientID: owner, Services: []clinic.MedicalService{paid}}, paid.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := d.ctrl.Settle(d.ctx, clinic.RefundIntent{Refund: tt.refund, Method: clinic.MethodCash, DiscountRate: dec("0")}, registrar)

			assert.Nil(t, p)
			assert.ErrorIs(t, err, clinic.ErrNotPaidByPatient)
			assert.ErrorIs(t, err, clinic.ErrDeclined)
			assert.False(t, d.service(tt.service).IsRefunded())
		})
	}

	report := d.report()
	assert.Len(t, report.Payments, 2)
	assert.Equal(t, "1000", report.CashBalance().String())
	assert.True(t, d.balance(stranger).IsZero())
}

func TestSettle_SpendingTouchesNoBalance(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	d.doctor("doc-1", nil)

	// WHEN 500 cash is spent on equipment
	p, err := d.ctrl.Settle(d.ctx, clinic.SpendingIntent{Category: clinic.SpendingEquipment, Description: "chair", Method: cash("500")}, registrar)
	require.NoError(t, err)
	assert.Equal(t, "-500", p.Total().String())

	// THEN no person balance moved
	assert.True(t, d.balance(patient).IsZero())
	assert.True(t, d.balance("doc-1").IsZero())

	// AND the day's expense shows it as a positive amount
	period, err := generic.PeriodFor(generic.PeriodDay, generic.Today(d.clock))
	require.NoError(t, err)
	expense, err := analytics.NewLedger(d.store).Expense(d.ctx, period)
	require.NoError(t, err)
	require.Len(t, expense, 1)
	assert.Equal(t, "equipment", expense[0].Category)
	assert.Equal(t, "500", expense[0].Amount.String())
}

func TestSettle_DoctorPayout(t *testing.T) {
	d := newDesk(t)
	performer := d.doctor("doc-1", ptr(dec("0.4")))
	patient := d.patient("pat-1")
	check := d.bill(patient, d.render(clinic.PricelistItem{ID: "mri", Price: dec("2000")}, &performer, nil))
	_, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{card("2000")}}, registrar)
	require.NoError(t, err)

	p, err := d.ctrl.Settle(d.ctx, clinic.DoctorPayoutIntent{Doctor: "doc-1", Method: cash("800")}, registrar)
	require.NoError(t, err)

	assert.Equal(t, clinic.PurposeDoctorPayout, p.Purpose.Kind)
	assert.True(t, d.balance("doc-1").IsZero())
	assert.Equal(t, "-800", d.report().CashBalance().String())
	d.verify("doc-1")
}

func TestSettle_BalanceTopUpAndWithdrawal(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")

	_, err := d.ctrl.Settle(d.ctx, clinic.BalanceIntent{Account: patient, Method: cash("500"), Direction: clinic.BalanceIn}, registrar)
	require.NoError(t, err)
	_, err = d.ctrl.Settle(d.ctx, clinic.BalanceIntent{Account: patient, Method: cash("200"), Direction: clinic.BalanceOut}, registrar)
	require.NoError(t, err)

	assert.Equal(t, "300", d.balance(patient).String())
	assert.Equal(t, "300", d.report().CashBalance().String())
	d.verify(patient)
}

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

func TestSettle_NoPatientIsSilentNoOp(t *testing.T) {
	d := newDesk(t)
	s := d.render(xray(), nil, nil)
	check := clinic.Check{ID: "walk-in", Services: []clinic.MedicalService{s}}

	p, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1000")}}, registrar)

	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, d.report().Payments)
	assert.Equal(t, clinic.Uncharged, d.service(s.ID).ChargeState)
}

func TestSettle_RequestedPatientStillNeedsAnAppointment(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	s := d.render(xray(), nil, nil)
	check := clinic.Check{ID: "no-visit", Services: []clinic.MedicalService{s}}
	require.NoError(t, d.store.SaveCheck(d.ctx, check))

	// WHEN the payer is named but the check has no appointment
	p, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1000")}, Patient: &patient}, registrar)

	// THEN the settlement is dropped like any check without a patient
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, d.report().Payments)
	assert.True(t, d.balance(patient).IsZero())
	assert.Equal(t, clinic.Uncharged, d.service(s.ID).ChargeState)
}

func TestSettle_RequestedPatientMustBeOnTheCheck(t *testing.T) {
	d := newDesk(t)
	owner := d.patient("pat-1")
	stranger := d.patient("pat-2")
	check := d.bill(owner, d.render(xray(), nil, nil))

	p, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1200")}, Patient: &stranger}, registrar)
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, d.report().Payments)
	assert.True(t, d.balance(stranger).IsZero())

	// The check's own patient settles normally
	p, err = d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1200")}, Patient: &owner}, registrar)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Subject)
	assert.Equal(t, owner, *p.Subject)
	assert.Equal(t, "200", d.balance(owner).String())
}

func TestSettle_NoMethodIsSilentNoOp(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	check := d.bill(patient, d.render(xray(), nil, nil))

	p, err := d.ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check}, registrar)
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = d.ctrl.Settle(d.ctx, clinic.DoctorPayoutIntent{Doctor: d.doctor("doc-1", nil).ID}, registrar)
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, d.report().Payments)
}

func TestSettle_Declined(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	d.doctor("doc-1", nil)
	check := d.bill(patient, d.render(xray(), nil, nil))

	tests := []struct {
		name   string
		intent clinic.Intent
		want   error
	}{
		{"zero payout", clinic.DoctorPayoutIntent{Doctor: "doc-1", Method: cash("0")}, clinic.ErrZeroValue},
		{"zero top-up", clinic.BalanceIntent{Account: patient, Method: cash("0"), Direction: clinic.BalanceIn}, clinic.ErrZeroValue},
		{"zero spending", clinic.SpendingIntent{Category: clinic.SpendingRent, Method: cash("0")}, clinic.ErrZeroValue},
		{"negative method", clinic.SpendingIntent{Category: clinic.SpendingRent, Method: cash("-5")}, clinic.ErrInvalidMethod},
		{"credit on a check", clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{{Type: clinic.MethodCredit, Value: dec("1000")}}}, clinic.ErrInvalidMethod},
		{"unknown direction", clinic.BalanceIntent{Account: patient, Method: cash("10"), Direction: "sideways"}, clinic.ErrDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := d.ctrl.Settle(d.ctx, tt.intent, registrar)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, clinic.ErrDeclined)
			assert.True(t, clinic.IsClientError(err))
		})
	}
	assert.Empty(t, d.report().Payments)
	assert.True(t, d.balance(patient).IsZero())
}

func TestSettle_ShiftClosed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ctrl := clinic.NewController(store, generic.NewFixedClock(registrarTime), zerolog.Nop())

	_, err := ctrl.Settle(ctx, clinic.SpendingIntent{Category: clinic.SpendingRent, Method: cash("10")}, registrar)
	assert.ErrorIs(t, err, clinic.ErrShiftClosed)
}

func TestSettle_UnknownDoctorIsNotFound(t *testing.T) {
	d := newDesk(t)
	_, err := d.ctrl.Settle(d.ctx, clinic.DoctorPayoutIntent{Doctor: "ghost", Method: cash("10")}, registrar)
	assert.True(t, clinic.IsNotFound(err))
}

// =============================================================================
// PERSISTENCE FAILURE - rollback through a mocked report append
// =============================================================================

// faultyStore passes everything through to memory except AppendPayment
// inside a transaction, which asks the mock first.
type faultyStore struct {
	*memory.Memory
	mock.Mock
}

type faultyTx struct {
	clinic.Store
	m *mock.Mock
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(clinic.Store) error) error {
	return f.Memory.WithTx(ctx, func(tx clinic.Store) error {
		return fn(&faultyTx{Store: tx, m: &f.Mock})
	})
}

func (f *faultyTx) AppendPayment(ctx context.Context, day generic.TimePoint, p clinic.Payment) error {
	if err := f.m.Called(p.Purpose.Kind).Error(0); err != nil {
		return err
	}
	return f.Store.AppendPayment(ctx, day, p)
}

func TestSettle_PersistenceFailureRollsBack(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")
	performer := d.doctor("doc-1", ptr(dec("0.4")))
	s := d.render(xray(), &performer, nil)
	check := d.bill(patient, s)

	store := &faultyStore{Memory: d.store}
	store.On("AppendPayment", clinic.PurposeToBalance).Return(nil).Once()
	store.On("AppendPayment", clinic.PurposeMedicalServices).Return(errors.New("disk full")).Once()
	ctrl := clinic.NewController(store, d.clock, zerolog.Nop())

	// WHEN the final report append fails after balance, charges and the
	// adjustment were written
	p, err := ctrl.Settle(d.ctx, clinic.MedicalServiceIntent{Check: check, Methods: []clinic.Method{cash("1500")}}, registrar)

	// THEN the error surfaces and nothing is kept
	require.Error(t, err)
	assert.Nil(t, p)
	store.AssertExpectations(t)

	assert.True(t, d.balance(patient).IsZero())
	assert.True(t, d.balance("doc-1").IsZero())
	assert.Equal(t, clinic.Uncharged, d.service(s.ID).ChargeState)
	assert.Empty(t, d.report().Payments)
	appt, _ := d.store.Appointment(d.ctx, check.AppointmentIDs[0])
	assert.Equal(t, clinic.AppointmentScheduled, appt.Status)
	d.verify(patient, "doc-1")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSettle_ConcurrentTopUpsSerialize(t *testing.T) {
	d := newDesk(t)
	patient := d.patient("pat-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.ctrl.Settle(d.ctx, clinic.BalanceIntent{Account: patient, Method: cash("50"), Direction: clinic.BalanceIn}, registrar)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, "1000", d.balance(patient).String())
	assert.Len(t, d.report().Payments, 20)
	assert.Equal(t, "1000", d.report().CashBalance().String())
	d.verify(patient)
}
