/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with a realistic
	front-desk day. Each scenario imports the demo catalog, registers
	patients, opens today's shift and runs settlements through the same
	controller the API uses, so balances, charges and the report are exactly
	what a real desk would produce.

AVAILABLE SCENARIOS:
	overpayment:    Patient overpays a check; the rest stays on the balance
	refund:         Charges cancelled and a service refunded in cash
	doctor-payout:  Salaries charged, then paid out in cash and by card
	busy-day:       Mixed methods, a debt, top-up, withdrawal, spending and
	                checking-account movements

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Import the demo catalog via factory
 3. Register patients and open the shift
 4. Render services, schedule appointments, bill checks
 5. Settle payment intents through the controller

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "overpayment"}

NOTE:
	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/catalog.go: DemoCatalogJSON
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/factory"
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "overpayment",
		Name:        "Overpayment",
		Description: "Patient pays 1200 for a 1000 X-ray; 200 stays on the balance",
		Category:    "settlement",
	},
	{
		ID:          "refund",
		Name:        "Refund",
		Description: "MRI and blood panel paid by card, MRI charges cancelled and refunded in cash",
		Category:    "settlement",
	},
	{
		ID:          "doctor-payout",
		Name:        "Doctor Payout",
		Description: "Piece-rate and fixed salaries charged, then paid out",
		Category:    "staff",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Mixed methods, a debt, top-up, withdrawal, spending and checking account",
		Category:    "register",
	},
}

var scenarioActor = clinic.User{ID: "demo-registrar", Name: "Demo Registrar", AccessLevel: clinic.AccessRegistrar}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, fmt.Sprintf("Failed to load scenario %q", req.ScenarioID), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "overpayment":
		load = h.loadOverpaymentScenario
	case "refund":
		load = h.loadRefundScenario
	case "doctor-payout":
		load = h.loadDoctorPayoutScenario
	case "busy-day":
		load = h.loadBusyDayScenario
	default:
		return fmt.Errorf("%w: unknown scenario %q", errBadRequest, id)
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.seedClinic(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Log.Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOverpaymentScenario(ctx context.Context) error {
	if err := h.demoPatient(ctx, "pat-anna", "Anna", "Kuznetsova"); err != nil {
		return err
	}
	check, err := h.visit(ctx, "pat-anna", "check-xray", decimal.Zero,
		line{item: "xray-chest", performer: "doc-ivanova", agent: "doc-referrer"})
	if err != nil {
		return err
	}
	return h.settleDemo(ctx, clinic.MedicalServiceIntent{
		Check:   check,
		Methods: []clinic.Method{method(clinic.MethodCash, 1200)},
	})
}

func (h *Handler) loadRefundScenario(ctx context.Context) error {
	if err := h.demoPatient(ctx, "pat-boris", "Boris", "Volkov"); err != nil {
		return err
	}
	check, err := h.visit(ctx, "pat-boris", "check-mri", decimal.Zero,
		line{item: "mri-knee", performer: "doc-ivanova", agent: "doc-referrer"},
		line{item: "blood-panel", performer: "doc-sidorova"})
	if err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.MedicalServiceIntent{
		Check:   check,
		Methods: []clinic.Method{method(clinic.MethodCard, 5300)},
	}); err != nil {
		return err
	}

	mri := check.Services[0]
	if err := h.Controller.CancelServiceCharges(ctx, []clinic.ServiceID{mri.ID}, scenarioActor); err != nil {
		return err
	}
	return h.settleDemo(ctx, clinic.RefundIntent{
		Refund: clinic.Refund{
			ID:        "refund-mri",
			CheckID:   check.ID,
			PatientID: "pat-boris",
			Services:  []clinic.MedicalService{mri},
		},
		Method:       clinic.MethodCash,
		DiscountRate: check.DiscountRate(),
	})
}

func (h *Handler) loadDoctorPayoutScenario(ctx context.Context) error {
	for _, p := range []struct{ id, first, last string }{
		{"pat-clara", "Clara", "Orlova"},
		{"pat-denis", "Denis", "Popov"},
	} {
		if err := h.demoPatient(ctx, p.id, p.first, p.last); err != nil {
			return err
		}
	}

	first, err := h.visit(ctx, "pat-clara", "check-consult", decimal.Zero,
		line{item: "consult", performer: "doc-petrov"},
		line{item: "ecg", performer: "doc-sidorova"})
	if err != nil {
		return err
	}
	second, err := h.visit(ctx, "pat-denis", "check-ecg", decimal.Zero,
		line{item: "ecg", performer: "doc-sidorova"})
	if err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.MedicalServiceIntent{Check: first, Methods: []clinic.Method{method(clinic.MethodCash, 2300)}}); err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.MedicalServiceIntent{Check: second, Methods: []clinic.Method{method(clinic.MethodCard, 800)}}); err != nil {
		return err
	}

	// Petrov earned 1500 * 0.3; Sidorova 2 * 200 fixed
	if err := h.settleDemo(ctx, clinic.DoctorPayoutIntent{Doctor: "doc-petrov", Method: method(clinic.MethodCash, 450)}); err != nil {
		return err
	}
	return h.settleDemo(ctx, clinic.DoctorPayoutIntent{Doctor: "doc-sidorova", Method: method(clinic.MethodCard, 100)})
}

func (h *Handler) loadBusyDayScenario(ctx context.Context) error {
	for _, p := range []struct{ id, first, last string }{
		{"pat-elena", "Elena", "Morozova"},
		{"pat-fedor", "Fedor", "Lebedev"},
		{"pat-galina", "Galina", "Kozlova"},
	} {
		if err := h.demoPatient(ctx, p.id, p.first, p.last); err != nil {
			return err
		}
	}

	// Split payment: 1000 cash + 1500 card for 2500
	split, err := h.visit(ctx, "pat-elena", "check-split", decimal.Zero,
		line{item: "consult", performer: "doc-petrov"},
		line{item: "xray-chest", performer: "doc-ivanova"})
	if err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.MedicalServiceIntent{
		Check:   split,
		Methods: []clinic.Method{method(clinic.MethodCash, 1000), method(clinic.MethodCard, 1500)},
	}); err != nil {
		return err
	}

	// Discounted check paid short: 800 - 100 discount, 500 paid, 200 debt
	short, err := h.visit(ctx, "pat-fedor", "check-short", decimal.NewFromInt(100),
		line{item: "ecg", performer: "doc-sidorova", agent: "doc-referrer"})
	if err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.MedicalServiceIntent{
		Check:   short,
		Methods: []clinic.Method{method(clinic.MethodBankTransfer, 500)},
	}); err != nil {
		return err
	}

	// Balance top-up and a withdrawal
	if err := h.settleDemo(ctx, clinic.BalanceIntent{Account: "pat-galina", Method: method(clinic.MethodCard, 1000), Direction: clinic.BalanceIn}); err != nil {
		return err
	}
	if err := h.settleDemo(ctx, clinic.BalanceIntent{Account: "pat-galina", Method: method(clinic.MethodCash, 300), Direction: clinic.BalanceOut}); err != nil {
		return err
	}

	// Spending from the drawer
	if err := h.settleDemo(ctx, clinic.SpendingIntent{Category: clinic.SpendingSupplies, Description: "gloves", Method: method(clinic.MethodCash, 250)}); err != nil {
		return err
	}

	// Clinic-level money outside the register
	checking, err := clinic.OpenCheckingAccount(ctx, h.Store, h.Clock, h.CheckingAccountID)
	if err != nil {
		return err
	}
	if _, err := checking.AssignTransaction(ctx, clinic.CheckingDeposit, decimal.NewFromInt(10000), "founder", scenarioActor); err != nil {
		return err
	}
	_, err = checking.AssignTransaction(ctx, clinic.CheckingRent, decimal.NewFromInt(-3500), "landlord", scenarioActor)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// seedClinic imports the demo catalog and opens today's shift.
func (h *Handler) seedClinic(ctx context.Context) error {
	catalog, err := h.Catalog.ParseCatalog(factory.DemoCatalogJSON())
	if err != nil {
		return err
	}
	if err := catalog.Apply(ctx, h.Store); err != nil {
		return err
	}
	_, err = h.Shifts.Open(ctx, scenarioActor)
	return err
}

func (h *Handler) demoPatient(ctx context.Context, id, first, last string) error {
	return h.Store.SavePatient(ctx, clinic.Patient{ID: generic.AccountID(id), FirstName: first, LastName: last})
}

// line is one service of a demo visit.
type line struct {
	item, performer, agent string
}

// visit renders the services of one appointment and bills them in a check.
// Service ids are derived from the check id.
func (h *Handler) visit(ctx context.Context, patient generic.AccountID, checkID string, discount decimal.Decimal, lines ...line) (clinic.Check, error) {
	now := h.Clock.Now()
	services := make([]clinic.MedicalService, 0, len(lines))
	for i, l := range lines {
		item, err := h.Store.PricelistItem(ctx, l.item)
		if err != nil {
			return clinic.Check{}, err
		}
		performer, err := h.optionalDoctor(ctx, &l.performer)
		if err != nil {
			return clinic.Check{}, err
		}
		agent, err := h.optionalDoctor(ctx, &l.agent)
		if err != nil {
			return clinic.Check{}, err
		}
		s := clinic.Render(clinic.ServiceID(fmt.Sprintf("%s-%d", checkID, i+1)), item, performer, agent, now)
		if err := h.Store.SaveService(ctx, s); err != nil {
			return clinic.Check{}, err
		}
		services = append(services, s)
	}

	check := clinic.Check{ID: checkID, Services: services, Discount: discount}
	appointment := clinic.Appointment{
		ID:         checkID + "-visit",
		PatientID:  &patient,
		ServiceIDs: check.ServiceIDs(),
		Status:     clinic.AppointmentScheduled,
		StartsAt:   now,
	}
	if err := h.Store.SaveAppointment(ctx, appointment); err != nil {
		return clinic.Check{}, err
	}
	check.AppointmentIDs = []string{appointment.ID}
	return check, h.Store.SaveCheck(ctx, check)
}

func (h *Handler) settleDemo(ctx context.Context, intent clinic.Intent) error {
	p, err := h.Controller.Settle(ctx, intent, scenarioActor)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%s settlement was skipped", intent.Kind())
	}
	return nil
}

func method(t clinic.MethodType, value int64) clinic.Method {
	return clinic.Method{Type: t, Value: decimal.NewFromInt(value)}
}
