/*
handlers.go - HTTP API handlers for the front-desk ledger

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the clinic controller, the shift
  register and the analytics ledger.

ENDPOINTS:
  People:
    GET    /api/patients                     List patients with balances
    POST   /api/patients                     Register a patient
    GET    /api/patients/{id}                Patient with balance
    GET    /api/patients/{id}/transactions   Patient money statement
    GET    /api/doctors ...                  Same shape for doctors

  Catalog:
    GET    /api/pricelist                    List catalog items
    POST   /api/pricelist                    Add or replace an item
    POST   /api/pricelist/import             Import a catalog JSON file
    GET    /api/pricelist/export             Export pricelist and staff

  Clinical records:
    POST   /api/services                     Render a service (freezes price)
    POST   /api/services/charge              Book compensation
    POST   /api/services/cancel-charges      Reverse compensation
    POST   /api/appointments, /api/checks    Create records

  Money:
    POST   /api/settlements/{kind}           Settle a payment intent
    POST   /api/settlements/{kind}/preview   Build without settling
    POST   /api/shifts                       Open today's shift
    GET    /api/shifts/current, /{date}      Daily reports
    GET    /api/accounts/{id}                Balance + conservation check
    GET    /api/analytics/*                  Period aggregations
    GET    /api/checking/{id}                Clinic checking account

ACTOR:
  X-User-ID, X-User-Name and X-Access-Level name the user a payment is
  attributed to. Audit only; no authorization happens here.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, declined settlements
  - 404: Record not found
  - 409: Conflict (duplicate key, shift state, charge state)
  - 422: Settlement guard failed (nothing to settle)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/frontdesk/ledger/analytics"
	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/factory"
	"github.com/frontdesk/ledger/generic"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
)

var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs from persistence. Both store/memory and
// store/sqlite satisfy it.
type Store interface {
	clinic.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Controller *clinic.Controller
	Shifts     *clinic.Shifts
	Ledger     *analytics.Ledger
	Catalog    *factory.CatalogFactory
	Clock      generic.Clock
	Log        zerolog.Logger

	// CheckingAccountID is the clinic account used by the demo scenarios.
	CheckingAccountID generic.AccountID

	newID func() string

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Store, clock generic.Clock, log zerolog.Logger) *Handler {
	return &Handler{
		Store:             store,
		Controller:        clinic.NewController(store, clock, log),
		Shifts:            clinic.NewShifts(store, clock),
		Ledger:            analytics.NewLedger(store),
		Catalog:           factory.NewCatalogFactory(),
		Clock:             clock,
		Log:               log,
		CheckingAccountID: "checking-main",
		newID:             uuid.NewString,
	}
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns all patients with their balances.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patients, err := h.Store.ListPatients(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list patients", err)
		return
	}

	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		balance, err := h.balance(ctx, p.ID)
		if err != nil {
			h.fail(w, r, "Failed to get balance", err)
			return
		}
		dtos[i] = PatientDTO{Patient: p, Balance: balance}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePatient registers a patient and opens the patient's account.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if req.FirstName == "" && req.LastName == "" {
		h.fail(w, r, "Patient name is required", errBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = h.newID()
	}

	p := clinic.Patient{
		ID:        generic.AccountID(req.ID),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if err := h.Store.SavePatient(r.Context(), p); err != nil {
		h.fail(w, r, "Failed to create patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, PatientDTO{Patient: p, Balance: decimal.Zero})
}

// GetPatient returns a single patient.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	p, err := h.Store.Patient(ctx, id)
	if err != nil {
		h.fail(w, r, "Patient not found", err)
		return
	}
	balance, err := h.balance(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, PatientDTO{Patient: p, Balance: balance})
}

// GetPatientStatement returns the patient's money statement.
func (h *Handler) GetPatientStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	if _, err := h.Store.Patient(ctx, id); err != nil {
		h.fail(w, r, "Patient not found", err)
		return
	}
	history, err := analytics.PatientHistory(ctx, h.Store, id)
	if err != nil {
		h.fail(w, r, "Failed to build statement", err)
		return
	}
	records := make([]analytics.Record, len(history))
	for i, tx := range history {
		records[i] = tx.Record
	}
	h.writeStatement(w, r, id, records)
}

// =============================================================================
// DOCTOR HANDLERS
// =============================================================================

// ListDoctors returns all doctors with their balances.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctors, err := h.Store.ListDoctors(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list doctors", err)
		return
	}

	dtos := make([]DoctorDTO, len(doctors))
	for i, d := range doctors {
		balance, err := h.balance(ctx, d.ID)
		if err != nil {
			h.fail(w, r, "Failed to get balance", err)
			return
		}
		dtos[i] = DoctorDTO{Doctor: d, Balance: balance}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDoctor adds a staff member. The piece rate is validated by the
// catalog factory, the same way an imported file is.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = h.newID()
	}

	catalog, err := h.Catalog.FromJSON(factory.CatalogJSON{Doctors: []factory.DoctorJSON{{
		ID:             req.ID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Specialization: req.Specialization,
		PerformerRate:  req.PerformerRate,
	}}})
	if err != nil {
		h.fail(w, r, "Invalid doctor", err)
		return
	}
	d := catalog.Doctors[0]
	if err := h.Store.SaveDoctor(r.Context(), d); err != nil {
		h.fail(w, r, "Failed to create doctor", err)
		return
	}
	writeJSON(w, http.StatusCreated, DoctorDTO{Doctor: d, Balance: decimal.Zero})
}

// GetDoctor returns a single doctor.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	d, err := h.Store.Doctor(ctx, id)
	if err != nil {
		h.fail(w, r, "Doctor not found", err)
		return
	}
	balance, err := h.balance(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorDTO{Doctor: d, Balance: balance})
}

// GetDoctorStatement returns fees, refills and payouts of a doctor.
func (h *Handler) GetDoctorStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	if _, err := h.Store.Doctor(ctx, id); err != nil {
		h.fail(w, r, "Doctor not found", err)
		return
	}
	history, err := analytics.DoctorHistory(ctx, h.Store, id)
	if err != nil {
		h.fail(w, r, "Failed to build statement", err)
		return
	}
	records := make([]analytics.Record, len(history))
	for i, tx := range history {
		records[i] = tx.Record
	}
	h.writeStatement(w, r, id, records)
}

func (h *Handler) writeStatement(w http.ResponseWriter, r *http.Request, id generic.AccountID, records []analytics.Record) {
	balance, err := h.balance(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, StatementDTO{AccountID: string(id), Balance: balance, Records: records})
}

// =============================================================================
// PRICELIST HANDLERS
// =============================================================================

// ListPricelist returns the catalog.
func (h *Handler) ListPricelist(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListPricelist(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list pricelist", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreatePricelistItem adds or replaces one catalog item.
func (h *Handler) CreatePricelistItem(w http.ResponseWriter, r *http.Request) {
	var req factory.PricelistItemJSON
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	catalog, err := h.Catalog.FromJSON(factory.CatalogJSON{Pricelist: []factory.PricelistItemJSON{req}})
	if err != nil {
		h.fail(w, r, "Invalid pricelist item", err)
		return
	}
	item := catalog.Pricelist[0]
	if err := h.Store.SavePricelistItem(r.Context(), item); err != nil {
		h.fail(w, r, "Failed to save pricelist item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ImportCatalog loads a catalog file (pricelist and staff).
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	var req factory.CatalogJSON
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	catalog, err := h.Catalog.FromJSON(req)
	if err != nil {
		h.fail(w, r, "Invalid catalog", err)
		return
	}
	if err := catalog.Apply(r.Context(), h.Store); err != nil {
		h.fail(w, r, "Failed to import catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"pricelist": len(catalog.Pricelist),
		"doctors":   len(catalog.Doctors),
	})
}

// ExportCatalog returns the pricelist and staff in import format.
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.Store.ListPricelist(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list pricelist", err)
		return
	}
	doctors, err := h.Store.ListDoctors(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list doctors", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Catalog.ToJSON(items, doctors))
}

// =============================================================================
// SERVICE HANDLERS
// =============================================================================

// RenderService records a rendered service with a frozen catalog snapshot.
func (h *Handler) RenderService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RenderServiceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	item, err := h.Store.PricelistItem(ctx, req.ItemID)
	if err != nil {
		h.fail(w, r, "Pricelist item not found", err)
		return
	}
	performer, err := h.optionalDoctor(ctx, req.PerformerID)
	if err != nil {
		h.fail(w, r, "Performer not found", err)
		return
	}
	agent, err := h.optionalDoctor(ctx, req.AgentID)
	if err != nil {
		h.fail(w, r, "Agent not found", err)
		return
	}

	if req.ID == "" {
		req.ID = h.newID()
	}
	s := clinic.Render(clinic.ServiceID(req.ID), item, performer, agent, h.Clock.Now())
	if req.Conclusion != "" {
		s.Conclusion = []byte(req.Conclusion)
	}
	if err := h.Store.SaveService(ctx, s); err != nil {
		h.fail(w, r, "Failed to save service", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GetService returns a rendered service.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.Service(r.Context(), clinic.ServiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Service not found", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ChargeServices books compensation for services outside of a payment.
func (h *Handler) ChargeServices(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.Controller.ChargeServices(r.Context(), serviceIDs(req.ServiceIDs), actorFrom(r)); err != nil {
		h.fail(w, r, "Failed to charge services", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "charged"})
}

// CancelServiceCharges reverses compensation, typically before a refund.
func (h *Handler) CancelServiceCharges(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	if err := h.Controller.CancelServiceCharges(r.Context(), serviceIDs(req.ServiceIDs), actorFrom(r)); err != nil {
		h.fail(w, r, "Failed to cancel charges", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// =============================================================================
// APPOINTMENT & CHECK HANDLERS
// =============================================================================

// CreateAppointment schedules an appointment.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateAppointmentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	a := clinic.Appointment{
		ID:         req.ID,
		ServiceIDs: serviceIDs(req.ServiceIDs),
		Status:     clinic.AppointmentScheduled,
		StartsAt:   h.Clock.Now(),
	}
	if a.ID == "" {
		a.ID = h.newID()
	}
	if req.StartsAt != nil {
		a.StartsAt = req.StartsAt.UTC()
	}
	if req.PatientID != nil {
		if _, err := h.Store.Patient(ctx, generic.AccountID(*req.PatientID)); err != nil {
			h.fail(w, r, "Patient not found", err)
			return
		}
		id := generic.AccountID(*req.PatientID)
		a.PatientID = &id
	}
	if req.DoctorID != nil {
		if _, err := h.Store.Doctor(ctx, generic.AccountID(*req.DoctorID)); err != nil {
			h.fail(w, r, "Doctor not found", err)
			return
		}
		id := generic.AccountID(*req.DoctorID)
		a.DoctorID = &id
	}

	if err := h.Store.SaveAppointment(ctx, a); err != nil {
		h.fail(w, r, "Failed to save appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAppointment returns an appointment.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.Appointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Appointment not found", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CreateCheck bills rendered services.
func (h *Handler) CreateCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateCheckRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	services, err := h.services(ctx, req.ServiceIDs)
	if err != nil {
		h.fail(w, r, "Service not found", err)
		return
	}
	c := clinic.Check{
		ID:             req.ID,
		Services:       services,
		Discount:       req.Discount,
		AppointmentIDs: req.AppointmentIDs,
	}
	if c.ID == "" {
		c.ID = h.newID()
	}
	if c.Discount.IsNegative() || c.Discount.GreaterThan(c.Price()) {
		h.fail(w, r, "Discount must be within [0, price]", errBadRequest)
		return
	}

	if err := h.Store.SaveCheck(ctx, c); err != nil {
		h.fail(w, r, "Failed to save check", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckDTO(c))
}

// GetCheck returns a check with its totals.
func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Check not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckDTO(c))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// Settle settles the payment intent of the kind in the URL.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	intent, err := h.intentFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid settlement", err)
		return
	}

	p, err := h.Controller.Settle(r.Context(), intent, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Settlement failed", err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, SettlementResponse{Status: "skipped"})
		return
	}
	dto := toPaymentDTO(*p)
	writeJSON(w, http.StatusCreated, SettlementResponse{Status: "settled", Payment: &dto})
}

// PreviewSettlement builds the payment an intent would produce, without
// writing anything. The front desk shows it for confirmation.
func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	intent, err := h.intentFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid settlement", err)
		return
	}
	if in, ok := intent.(clinic.RefundIntent); ok {
		account, err := h.Store.Account(ctx, in.Refund.PatientID)
		if err != nil {
			h.fail(w, r, "Account not found", err)
			return
		}
		in.Account = account
		intent = in
	}

	p, err := h.Controller.Builder().Build(intent, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Cannot build payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

// intentFrom decodes the request body for the intent kind in the URL.
func (h *Handler) intentFrom(r *http.Request) (clinic.Intent, error) {
	ctx := r.Context()
	kind := clinic.IntentKind(chi.URLParam(r, "kind"))

	switch kind {
	case clinic.IntentMedicalService:
		var req MedicalServiceRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		check, err := h.Store.Check(ctx, req.CheckID)
		if err != nil {
			return nil, err
		}
		intent := clinic.MedicalServiceIntent{Check: check, Methods: req.Methods}
		if req.PatientID != nil {
			id := generic.AccountID(*req.PatientID)
			intent.Patient = &id
		}
		return intent, nil

	case clinic.IntentDoctorPayout:
		var req DoctorPayoutRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return clinic.DoctorPayoutIntent{Doctor: generic.AccountID(req.DoctorID), Method: req.Method}, nil

	case clinic.IntentRefund:
		var req RefundRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if req.PatientID == "" {
			return nil, fmt.Errorf("%w: patient_id is required", errBadRequest)
		}
		services, err := h.services(ctx, req.ServiceIDs)
		if err != nil {
			return nil, err
		}
		rate := decimal.Zero
		if req.CheckID != "" {
			check, err := h.Store.Check(ctx, req.CheckID)
			if err != nil {
				return nil, err
			}
			rate = check.DiscountRate()
		}
		if req.ID == "" {
			req.ID = h.newID()
		}
		return clinic.RefundIntent{
			Refund: clinic.Refund{
				ID:        req.ID,
				CheckID:   req.CheckID,
				PatientID: generic.AccountID(req.PatientID),
				Services:  services,
			},
			Method:         req.Method,
			DiscountRate:   rate,
			IncludeBalance: req.IncludeBalance,
		}, nil

	case clinic.IntentBalance:
		var req BalanceRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return clinic.BalanceIntent{Account: generic.AccountID(req.AccountID), Method: req.Method, Direction: req.Direction}, nil

	case clinic.IntentSpending:
		var req SpendingRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return clinic.SpendingIntent{Category: req.Category, Description: req.Description, Method: req.Method}, nil
	}
	return nil, fmt.Errorf("%w: %q", clinic.ErrUnknownIntent, kind)
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// OpenShift opens today's report, carrying the previous cash balance.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	report, err := h.Shifts.Open(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to open shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(*report))
}

// CurrentShift returns today's report.
func (h *Handler) CurrentShift(w http.ResponseWriter, r *http.Request) {
	report, err := h.Shifts.Current(r.Context())
	if err != nil {
		h.fail(w, r, "No open shift", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*report))
}

// GetShift returns the report of a given day.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	day, err := generic.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, r, "Invalid date format (use YYYY-MM-DD)", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	report, err := h.Shifts.Get(r.Context(), day)
	if err != nil {
		h.fail(w, r, "No report for this day", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*report))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccount returns an account and whether its balance matches its log.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	account, err := h.Store.Account(ctx, id)
	if err != nil {
		h.fail(w, r, "Account not found", err)
		return
	}
	dto := AccountDTO{ID: string(account.ID), Kind: string(account.Kind), Balance: account.Balance, Verified: true}

	err = generic.NewLedger(h.Store).Verify(ctx, id)
	var drift *generic.ConservationError
	switch {
	case errors.As(err, &drift):
		replayed := drift.Replayed.String()
		dto.Verified = false
		dto.Replayed = &replayed
		hlog.FromRequest(r).Warn().Str("account", string(id)).Err(err).Msg("balance drift")
	case err != nil:
		h.fail(w, r, "Failed to verify account", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetAccountTransactions returns the raw ledger of an account.
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	if _, err := h.Store.Account(ctx, id); err != nil {
		h.fail(w, r, "Account not found", err)
		return
	}
	txs, err := h.Store.Load(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// Income returns money received in the period, by default over cash, card
// and bank transfer. ?methods=cash,credit narrows or widens the set.
func (h *Handler) Income(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	methods := clinic.MoneyMethods
	if raw := r.URL.Query().Get("methods"); raw != "" {
		methods = nil
		for _, part := range strings.Split(raw, ",") {
			t := clinic.MethodType(strings.TrimSpace(part))
			if !t.Valid() {
				h.fail(w, r, "Invalid method", fmt.Errorf("%w: method %q", errBadRequest, t))
				return
			}
			methods = append(methods, t)
		}
	}

	var amount decimal.Decimal
	if raw := r.URL.Query().Get("methods"); raw == "" {
		amount, err = h.Ledger.MoneyIncome(r.Context(), period)
	} else {
		amount, err = h.Ledger.Income(r.Context(), period, methods...)
	}
	if err != nil {
		h.fail(w, r, "Failed to compute income", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Period: toPeriodDTO(period), Result: IncomeDTO{Methods: methods, Amount: amount}})
}

// Expense returns outflows grouped by category.
func (h *Handler) Expense(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	expenses, err := h.Ledger.Expense(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to compute expense", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Period: toPeriodDTO(period), Result: expenses})
}

// CategoriesRevenue returns the catalog value paid per category.
func (h *Handler) CategoriesRevenue(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	revenue, err := h.Ledger.CategoriesRevenue(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to compute revenue", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Period: toPeriodDTO(period), Result: revenue})
}

// TopServices returns the most paid-for items of ?category=, at most ?max=.
func (h *Handler) TopServices(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	q := r.URL.Query()
	category := clinic.Category(q.Get("category"))
	if category == "" {
		h.fail(w, r, "category is required", errBadRequest)
		return
	}
	limit := 0
	if raw := q.Get("max"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.fail(w, r, "Invalid max", fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	top, err := h.Ledger.CategoryTopServices(r.Context(), category, period, limit)
	if err != nil {
		h.fail(w, r, "Failed to compute top services", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Period: toPeriodDTO(period), Result: top})
}

// Summary returns the one-screen view of a period.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	summary, err := h.Ledger.Summary(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyticsResponse{Period: toPeriodDTO(period), Result: summary})
}

// periodFrom reads ?from=&to= (half-open) or ?period=day|week|month|year
// anchored at ?date= (default today).
func (h *Handler) periodFrom(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := generic.ParseDay(from)
		if err != nil {
			return generic.Period{}, fmt.Errorf("%w: from: %v", generic.ErrInvalidPeriod, err)
		}
		end, err := generic.ParseDay(to)
		if err != nil {
			return generic.Period{}, fmt.Errorf("%w: to: %v", generic.ErrInvalidPeriod, err)
		}
		return generic.NewPeriod(start, end)
	}

	kind := generic.PeriodDay
	if raw := q.Get("period"); raw != "" {
		var err error
		if kind, err = generic.ParsePeriodKind(raw); err != nil {
			return generic.Period{}, err
		}
	}
	anchor := generic.Today(h.Clock)
	if raw := q.Get("date"); raw != "" {
		var err error
		if anchor, err = generic.ParseDay(raw); err != nil {
			return generic.Period{}, fmt.Errorf("%w: date: %v", generic.ErrInvalidPeriod, err)
		}
	}
	return generic.PeriodFor(kind, anchor)
}

// =============================================================================
// CHECKING ACCOUNT HANDLERS
// =============================================================================

// GetChecking returns the clinic account with its transactions.
func (h *Handler) GetChecking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))

	account, err := h.Store.Account(ctx, id)
	if err != nil {
		h.fail(w, r, "Checking account not found", err)
		return
	}
	if account.Kind != clinic.RoleChecking.AccountKind() {
		h.fail(w, r, "Not a checking account", fmt.Errorf("%w: %s is a %s account", clinic.ErrNotFound, id, account.Kind))
		return
	}
	txs, err := h.Store.Load(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckingDTO{ID: string(id), Balance: account.Balance, Transactions: toTransactionDTOs(txs)})
}

// CreateCheckingTransaction records a deposit, rent, tax... on the clinic
// account, opening it on first use.
func (h *Handler) CreateCheckingTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CheckingTransactionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	account, err := clinic.OpenCheckingAccount(ctx, h.Store, h.Clock, generic.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to open checking account", err)
		return
	}
	tx, err := account.AssignTransaction(ctx, req.Purpose, req.Amount, req.Counterparty, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to record transaction", err)
		return
	}
	balance, err := account.Balance(ctx)
	if err != nil {
		h.fail(w, r, "Failed to get balance", err)
		return
	}

	dto := toTransactionDTOs([]generic.Transaction{tx})[0]
	dto.Balance = balance
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps err to a status and writes it. Server errors are logged with the
// request's logger.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case clinic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey),
		errors.Is(err, generic.ErrAccountExists),
		errors.Is(err, clinic.ErrShiftAlreadyOpen),
		errors.Is(err, clinic.ErrShiftClosed),
		errors.Is(err, clinic.ErrAlreadyCharged),
		errors.Is(err, clinic.ErrNotCharged),
		errors.Is(err, clinic.ErrAlreadyRefunded):
		return http.StatusConflict
	case errors.Is(err, clinic.ErrSkipped):
		return http.StatusUnprocessableEntity
	case clinic.IsClientError(err),
		errors.Is(err, errBadRequest),
		errors.Is(err, factory.ErrInvalidCatalog):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// actorFrom reads the acting user from headers, defaulting to the front desk.
func actorFrom(r *http.Request) clinic.User {
	u := clinic.User{
		ID:          r.Header.Get("X-User-ID"),
		Name:        r.Header.Get("X-User-Name"),
		AccessLevel: clinic.AccessLevel(r.Header.Get("X-Access-Level")),
	}
	if u.ID == "" {
		u.ID = "front-desk"
	}
	if u.AccessLevel == "" {
		u.AccessLevel = clinic.AccessRegistrar
	}
	return u
}

func (h *Handler) balance(ctx context.Context, id generic.AccountID) (decimal.Decimal, error) {
	account, err := h.Store.Account(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (h *Handler) optionalDoctor(ctx context.Context, id *string) (*clinic.Doctor, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	d, err := h.Store.Doctor(ctx, generic.AccountID(*id))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) services(ctx context.Context, ids []string) ([]clinic.MedicalService, error) {
	services := make([]clinic.MedicalService, 0, len(ids))
	for _, id := range ids {
		s, err := h.Store.Service(ctx, clinic.ServiceID(id))
		if err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, nil
}

func serviceIDs(ids []string) []clinic.ServiceID {
	out := make([]clinic.ServiceID, len(ids))
	for i, id := range ids {
		out[i] = clinic.ServiceID(id)
	}
	return out
}
