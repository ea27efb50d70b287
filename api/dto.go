/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain records that
  already carry JSON tags (Patient, Doctor, PricelistItem, MedicalService,
  Payment) are embedded; everything derived (balances, totals, verification)
  is added here so the domain model stays free of presentation fields.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every amount is a shopspring decimal. It is encoded as a JSON string
  ("1500.5") and accepted as a string or a number.

VALIDATION:
  Validation is done in handlers and in the domain, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CatalogJSON import format
*/
package api

import (
	"time"

	"github.com/frontdesk/ledger/analytics"
	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PEOPLE & ACCOUNTS
// =============================================================================

type PatientDTO struct {
	clinic.Patient
	Balance decimal.Decimal `json:"balance"`
}

type CreatePatientRequest struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

type DoctorDTO struct {
	clinic.Doctor
	Balance decimal.Decimal `json:"balance"`
}

type CreateDoctorRequest struct {
	ID             string           `json:"id,omitempty"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	Specialization string           `json:"specialization,omitempty"`
	PerformerRate  *decimal.Decimal `json:"performer_rate,omitempty"`
}

// AccountDTO is an account with the result of its conservation check.
type AccountDTO struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Balance  decimal.Decimal `json:"balance"`
	Verified bool            `json:"verified"`
	Replayed *string         `json:"replayed,omitempty"`
}

// TransactionDTO is one ledger entry.
type TransactionDTO struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	EffectiveAt string          `json:"effective_at"`
	Delta       decimal.Decimal `json:"delta"`
	Type        string          `json:"type"`
	Role        string          `json:"role,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	Balance     decimal.Decimal `json:"balance"` // running balance after this entry
}

// =============================================================================
// SERVICES, APPOINTMENTS, CHECKS
// =============================================================================

type RenderServiceRequest struct {
	ID          string  `json:"id,omitempty"`
	ItemID      string  `json:"item_id"`
	PerformerID *string `json:"performer_id,omitempty"`
	AgentID     *string `json:"agent_id,omitempty"`
	Conclusion  string  `json:"conclusion,omitempty"`
}

type ChargeRequest struct {
	ServiceIDs []string `json:"service_ids"`
}

type CreateAppointmentRequest struct {
	ID         string     `json:"id,omitempty"`
	PatientID  *string    `json:"patient_id,omitempty"`
	DoctorID   *string    `json:"doctor_id,omitempty"`
	ServiceIDs []string   `json:"service_ids"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
}

type CreateCheckRequest struct {
	ID             string          `json:"id,omitempty"`
	ServiceIDs     []string        `json:"service_ids"`
	Discount       decimal.Decimal `json:"discount"`
	AppointmentIDs []string        `json:"appointment_ids"`
}

type CheckDTO struct {
	clinic.Check
	Price        decimal.Decimal `json:"price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

type MedicalServiceRequest struct {
	CheckID   string          `json:"check_id"`
	Methods   []clinic.Method `json:"methods"`
	PatientID *string         `json:"patient_id,omitempty"`
}

type DoctorPayoutRequest struct {
	DoctorID string        `json:"doctor_id"`
	Method   clinic.Method `json:"method"`
}

type RefundRequest struct {
	ID             string            `json:"id,omitempty"`
	CheckID        string            `json:"check_id,omitempty"`
	PatientID      string            `json:"patient_id"`
	ServiceIDs     []string          `json:"service_ids"`
	Method         clinic.MethodType `json:"method"`
	IncludeBalance bool              `json:"include_balance"`
}

type BalanceRequest struct {
	AccountID string                  `json:"account_id"`
	Method    clinic.Method           `json:"method"`
	Direction clinic.BalanceDirection `json:"direction"`
}

type SpendingRequest struct {
	Category    clinic.SpendingCategory `json:"category"`
	Description string                  `json:"description,omitempty"`
	Method      clinic.Method           `json:"method"`
}

type PaymentDTO struct {
	clinic.Payment
	Total         decimal.Decimal `json:"total"`
	BalanceEffect decimal.Decimal `json:"balance_effect"`
}

// SettlementResponse reports what Settle did. A skipped settlement wrote
// nothing and carries no payment.
type SettlementResponse struct {
	Status  string      `json:"status"`
	Payment *PaymentDTO `json:"payment,omitempty"`
}

// =============================================================================
// REPORTS & ANALYTICS
// =============================================================================

type ReportDTO struct {
	Date         string                                `json:"date"`
	StartingCash decimal.Decimal                       `json:"starting_cash"`
	CashBalance  decimal.Decimal                       `json:"cash_balance"`
	Totals       map[clinic.MethodType]decimal.Decimal `json:"totals"`
	Payments     []PaymentDTO                          `json:"payments"`
	OpenedBy     clinic.User                           `json:"opened_by"`
	OpenedAt     string                                `json:"opened_at"`
}

type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AnalyticsResponse wraps every analytics result with the period it covers.
type AnalyticsResponse struct {
	Period PeriodDTO `json:"period"`
	Result any       `json:"result"`
}

type IncomeDTO struct {
	Methods []clinic.MethodType `json:"methods"`
	Amount  decimal.Decimal     `json:"amount"`
}

// StatementDTO is a person's money statement.
type StatementDTO struct {
	AccountID string             `json:"account_id"`
	Balance   decimal.Decimal    `json:"balance"`
	Records   []analytics.Record `json:"records"`
}

// =============================================================================
// CHECKING ACCOUNT
// =============================================================================

type CheckingTransactionRequest struct {
	Purpose      clinic.CheckingPurpose `json:"purpose"`
	Amount       decimal.Decimal        `json:"amount"`
	Counterparty string                 `json:"counterparty,omitempty"`
}

type CheckingDTO struct {
	ID           string           `json:"id"`
	Balance      decimal.Decimal  `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPaymentDTO(p clinic.Payment) PaymentDTO {
	return PaymentDTO{Payment: p, Total: p.Total(), BalanceEffect: p.BalanceEffect()}
}

func toReportDTO(r clinic.Report) ReportDTO {
	dto := ReportDTO{
		Date:         r.Date.String(),
		StartingCash: r.StartingCash,
		CashBalance:  r.CashBalance(),
		Totals:       make(map[clinic.MethodType]decimal.Decimal),
		Payments:     make([]PaymentDTO, len(r.Payments)),
		OpenedBy:     r.OpenedBy,
		OpenedAt:     r.OpenedAt.Format(time.RFC3339),
	}
	for _, t := range []clinic.MethodType{clinic.MethodCash, clinic.MethodCard, clinic.MethodBankTransfer, clinic.MethodCredit} {
		dto.Totals[t] = r.MethodTotal(t)
	}
	for i, p := range r.Payments {
		dto.Payments[i] = toPaymentDTO(p)
	}
	return dto
}

func toCheckDTO(c clinic.Check) CheckDTO {
	return CheckDTO{Check: c, Price: c.Price(), TotalPrice: c.TotalPrice(), DiscountRate: c.DiscountRate()}
}

func toPeriodDTO(p generic.Period) PeriodDTO {
	return PeriodDTO{Start: p.Start.String(), End: p.End.String()}
}

// toTransactionDTOs converts a chronological log and attaches the running
// balance after each entry.
func toTransactionDTOs(txs []generic.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	running := decimal.Zero
	for i, tx := range txs {
		running = running.Add(tx.Delta)
		dtos[i] = TransactionDTO{
			ID:          string(tx.ID),
			AccountID:   string(tx.AccountID),
			EffectiveAt: tx.EffectiveAt.Format(time.RFC3339),
			Delta:       tx.Delta,
			Type:        string(tx.Type),
			Role:        tx.Role,
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			CreatedBy:   tx.CreatedBy,
			Balance:     running,
		}
	}
	return dtos
}
