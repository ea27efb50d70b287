package clinic

import (
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CHECK - A bill for rendered services
// =============================================================================

// Check is the bill a patient pays at the desk.
// TotalPrice = sum(service price) - Discount.
type Check struct {
	ID             string           `json:"id"`
	Services       []MedicalService `json:"services"`
	Discount       decimal.Decimal  `json:"discount"`
	AppointmentIDs []string         `json:"appointment_ids"`
}

// Price is the undiscounted sum of service prices.
func (c Check) Price() decimal.Decimal {
	total := decimal.Zero
	for _, s := range c.Services {
		total = total.Add(s.Price())
	}
	return total
}

func (c Check) TotalPrice() decimal.Decimal {
	return c.Price().Sub(c.Discount)
}

// DiscountRate is Discount / Price, zero for an empty check.
func (c Check) DiscountRate() decimal.Decimal {
	price := c.Price()
	if price.IsZero() {
		return decimal.Zero
	}
	return c.Discount.Div(price)
}

func (c Check) ServiceIDs() []ServiceID {
	ids := make([]ServiceID, len(c.Services))
	for i, s := range c.Services {
		ids[i] = s.ID
	}
	return ids
}

// =============================================================================
// REFUND - Services returned to the patient
// =============================================================================

type Refund struct {
	ID        string            `json:"id"`
	CheckID   string            `json:"check_id,omitempty"`
	PatientID generic.AccountID `json:"patient_id"`
	Services  []MedicalService  `json:"services"`
}

// Price is the undiscounted sum of refunded service prices.
func (r Refund) Price() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Services {
		total = total.Add(s.Price())
	}
	return total
}

// TotalAmount is the signed amount owed back to the patient:
// discountRate*price - price. It is negative for any non-empty refund
// with a discount rate below one.
func (r Refund) TotalAmount(discountRate decimal.Decimal) decimal.Decimal {
	price := r.Price()
	return discountRate.Mul(price).Sub(price)
}

func (r Refund) ServiceIDs() []ServiceID {
	ids := make([]ServiceID, len(r.Services))
	for i, s := range r.Services {
		ids[i] = s.ID
	}
	return ids
}
