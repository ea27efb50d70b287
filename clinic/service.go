package clinic

import (
	"time"

	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEDICAL SERVICE - One billable unit of rendered work
// =============================================================================

type ServiceID string

// ChargeState tracks whether compensation for a service is on the books.
type ChargeState string

const (
	Uncharged ChargeState = "uncharged"
	Charged   ChargeState = "charged"
)

// MedicalService is a rendered service.
//
// Item and PerformerRate are frozen at render time. Charge and cancel both
// compute compensation from these frozen values, so a later catalog change
// or a new doctor rate cannot make a cancel differ from its charge.
type MedicalService struct {
	ID            ServiceID          `json:"id"`
	Item          PricelistItem      `json:"item"`
	PerformerID   *generic.AccountID `json:"performer_id,omitempty"`
	PerformerRate *decimal.Decimal   `json:"performer_rate,omitempty"`
	AgentID       *generic.AccountID `json:"agent_id,omitempty"`
	Conclusion    []byte             `json:"conclusion,omitempty"`
	RenderedAt    time.Time          `json:"rendered_at"`

	ChargeState ChargeState `json:"charge_state"`
	Charges     int         `json:"charges"` // times MakeCharges ran; keys the idempotency of each cycle
	RefundID    *string     `json:"refund_id,omitempty"`
}

// Render creates a service from a catalog item. The performer's current rate
// is copied into the service.
func Render(id ServiceID, item PricelistItem, performer *Doctor, agent *Doctor, at time.Time) MedicalService {
	s := MedicalService{
		ID:          id,
		Item:        item.Snapshot(),
		RenderedAt:  at,
		ChargeState: Uncharged,
	}
	if performer != nil {
		pid := performer.ID
		s.PerformerID = &pid
		if performer.PerformerRate != nil {
			rate := *performer.PerformerRate
			s.PerformerRate = &rate
		}
	}
	if agent != nil {
		aid := agent.ID
		s.AgentID = &aid
	}
	return s
}

// Price is the frozen catalog price.
func (s MedicalService) Price() decimal.Decimal { return s.Item.Price }

// IsRefunded reports whether a refund references this service.
func (s MedicalService) IsRefunded() bool { return s.RefundID != nil }

// =============================================================================
// APPOINTMENT
// =============================================================================

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID         string             `json:"id"`
	PatientID  *generic.AccountID `json:"patient_id,omitempty"`
	DoctorID   *generic.AccountID `json:"doctor_id,omitempty"`
	ServiceIDs []ServiceID        `json:"service_ids"`
	Status     AppointmentStatus  `json:"status"`
	StartsAt   time.Time          `json:"starts_at"`
}
