/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Catalog and staff are imported
	- The shift is open and carries the settled payments
	- Balances match the compensation rules
	- Every balance still equals the sum of its history

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/frontdesk/ledger/clinic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadVia(t *testing.T, s *testServer, id string) {
	t.Helper()
	rec := s.must(http.StatusOK, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	assert.Equal(t, map[string]string{"status": "loaded", "scenario": id}, decodeAs[map[string]string](t, rec))
}

func (s *testServer) assertConserved() {
	s.t.Helper()
	result := NewShiftScheduler(s.h).RunNow(context.Background())
	assert.False(s.t, result.ShiftOpened, "scenario should have opened the shift")
	assert.Empty(s.t, result.Drifted)
	assert.Positive(s.t, result.Verified)
}

func TestScenario_Overpayment(t *testing.T) {
	// GIVEN: The overpayment scenario
	s := newTestServer(t)

	// WHEN: Loading it
	loadVia(t, s, "overpayment")

	// THEN: 200 stays on the patient, the doctors are paid for the X-ray
	assertDecimal(t, "200", s.balance("/api/patients/pat-anna"))
	assertDecimal(t, "400", s.balance("/api/doctors/doc-ivanova"))
	assertDecimal(t, "100", s.balance("/api/doctors/doc-referrer"))

	report := decodeAs[ReportDTO](t, s.must(http.StatusOK, "GET", "/api/shifts/current", nil))
	assert.Len(t, report.Payments, 2)
	assertDecimal(t, "1200", report.CashBalance)
	assert.Equal(t, "demo-registrar", report.OpenedBy.ID)

	s.assertConserved()
}

func TestScenario_Refund(t *testing.T) {
	s := newTestServer(t)
	loadVia(t, s, "refund")

	// Charges for the MRI are reversed, the blood panel paid no salary
	assertDecimal(t, "0", s.balance("/api/patients/pat-boris"))
	assertDecimal(t, "0", s.balance("/api/doctors/doc-ivanova"))
	assertDecimal(t, "0", s.balance("/api/doctors/doc-referrer"))
	assertDecimal(t, "0", s.balance("/api/doctors/doc-sidorova"))

	mri := decodeAs[clinic.MedicalService](t, s.must(http.StatusOK, "GET", "/api/services/check-mri-1", nil))
	assert.Equal(t, clinic.Uncharged, mri.ChargeState)
	require.NotNil(t, mri.RefundID)
	assert.Equal(t, "refund-mri", *mri.RefundID)

	panel := decodeAs[clinic.MedicalService](t, s.must(http.StatusOK, "GET", "/api/services/check-mri-2", nil))
	assert.Equal(t, clinic.Charged, panel.ChargeState)
	assert.Nil(t, panel.RefundID)

	report := decodeAs[ReportDTO](t, s.must(http.StatusOK, "GET", "/api/shifts/current", nil))
	assertDecimal(t, "-5000", report.CashBalance)
	assertDecimal(t, "5300", report.Totals[clinic.MethodCard])

	s.assertConserved()
}

func TestScenario_DoctorPayout(t *testing.T) {
	s := newTestServer(t)
	loadVia(t, s, "doctor-payout")

	// Petrov: 1500 * 0.3 paid out in full. Sidorova: 2 * 200 fixed, 100 paid.
	assertDecimal(t, "0", s.balance("/api/doctors/doc-petrov"))
	assertDecimal(t, "300", s.balance("/api/doctors/doc-sidorova"))
	assertDecimal(t, "0", s.balance("/api/patients/pat-clara"))
	assertDecimal(t, "0", s.balance("/api/patients/pat-denis"))

	statement := decodeAs[StatementDTO](t, s.must(http.StatusOK, "GET", "/api/doctors/doc-sidorova/transactions", nil))
	assert.Len(t, statement.Records, 3, "two fixed salaries and one payout")

	report := decodeAs[ReportDTO](t, s.must(http.StatusOK, "GET", "/api/shifts/current", nil))
	assertDecimal(t, "1850", report.CashBalance)

	s.assertConserved()
}

func TestScenario_BusyDay(t *testing.T) {
	s := newTestServer(t)
	loadVia(t, s, "busy-day")

	assertDecimal(t, "0", s.balance("/api/patients/pat-elena"))
	assertDecimal(t, "-200", s.balance("/api/patients/pat-fedor"))
	assertDecimal(t, "700", s.balance("/api/patients/pat-galina"))
	assertDecimal(t, "80", s.balance("/api/doctors/doc-referrer"))

	checking := decodeAs[CheckingDTO](t, s.must(http.StatusOK, "GET", "/api/checking/checking-main", nil))
	assertDecimal(t, "6500", checking.Balance)
	assert.Len(t, checking.Transactions, 2)

	report := decodeAs[ReportDTO](t, s.must(http.StatusOK, "GET", "/api/shifts/current", nil))
	// 1000 cash in, 300 withdrawn, 250 spent
	assertDecimal(t, "450", report.CashBalance)
	assertDecimal(t, "-200", report.Totals[clinic.MethodCredit])

	income := decodeAs[struct {
		Result IncomeDTO `json:"result"`
	}](t, s.must(http.StatusOK, "GET", "/api/analytics/income", nil))
	// 1000 cash + 1500 card + 500 transfer + 1000 card top-up
	assertDecimal(t, "4000", income.Result.Amount)

	s.assertConserved()
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	// GIVEN: All available scenarios
	// WHEN: Loading each scenario twice in a row
	// THEN: None should error; the reset makes loading repeatable

	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			h := setupTestHandler(t)
			ctx := context.Background()

			require.NoError(t, h.loadScenario(ctx, sc.ID))
			require.NoError(t, h.loadScenario(ctx, sc.ID))
			assert.Equal(t, sc.ID, h.currentScenario)
		})
	}
}

func TestScenario_ListCurrentAndReset(t *testing.T) {
	s := newTestServer(t)

	list := decodeAs[[]ScenarioDTO](t, s.must(http.StatusOK, "GET", "/api/scenarios", nil))
	assert.Len(t, list, len(scenarios))

	// Nothing loaded yet
	assert.Equal(t, "null", strings.TrimSpace(s.must(http.StatusOK, "GET", "/api/scenarios/current", nil).Body.String()))

	loadVia(t, s, "busy-day")
	current := decodeAs[ScenarioDTO](t, s.must(http.StatusOK, "GET", "/api/scenarios/current", nil))
	assert.Equal(t, "busy-day", current.ID)
	assert.Equal(t, "register", current.Category)

	// Unknown scenario is rejected and leaves the loaded data alone
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}).Code)
	assertDecimal(t, "700", s.balance("/api/patients/pat-galina"))

	// Reset clears everything
	s.must(http.StatusOK, "POST", "/api/scenarios/reset", nil)
	patients := decodeAs[[]PatientDTO](t, s.must(http.StatusOK, "GET", "/api/patients", nil))
	assert.Empty(t, patients)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/accounts/checking-main", nil).Code)
	assert.Equal(t, "null", strings.TrimSpace(s.must(http.StatusOK, "GET", "/api/scenarios/current", nil).Body.String()))
}
