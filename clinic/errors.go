package clinic

import (
	"errors"
	"fmt"

	"github.com/frontdesk/ledger/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrShiftClosed is returned when no report is open for the day.
	ErrShiftClosed = errors.New("shift is not open")

	// ErrShiftAlreadyOpen is returned when a day's report already exists.
	ErrShiftAlreadyOpen = errors.New("shift already open")

	// ErrSkipped is the parent of guard failures: a required linked entity
	// is missing and the operation is dropped without writing anything.
	ErrSkipped = errors.New("settlement skipped")

	// ErrNoPatient is returned when a check has no appointment with a patient.
	ErrNoPatient = fmt.Errorf("%w: check has no patient", ErrSkipped)

	// ErrNoMethod is returned when a payment method is missing.
	ErrNoMethod = fmt.Errorf("%w: no payment method", ErrSkipped)

	// ErrDeclined is the parent of every validation failure that rejects a
	// settlement before anything is written.
	ErrDeclined = errors.New("settlement declined")

	// ErrZeroValue is returned for a payout, balance or spending of zero.
	ErrZeroValue = fmt.Errorf("%w: zero payment value", ErrDeclined)

	// ErrInvalidMethod is returned for an unknown or negative method amount.
	ErrInvalidMethod = fmt.Errorf("%w: invalid payment method", ErrDeclined)

	// ErrAlreadyCharged is returned when charging a charged service.
	ErrAlreadyCharged = errors.New("service already charged")

	// ErrNotCharged is returned when cancelling charges that were never made.
	ErrNotCharged = errors.New("service is not charged")

	// ErrAlreadyRefunded is returned when a service is refunded a second time.
	ErrAlreadyRefunded = errors.New("service already refunded")

	// ErrNotPaidByPatient rejects refunds of services the patient never paid for.
	ErrNotPaidByPatient = fmt.Errorf("%w: service was not paid by this patient", ErrDeclined)

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")

	// ErrUnknownIntent is returned for an intent the controller can't dispatch.
	ErrUnknownIntent = errors.New("unknown payment intent")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ChargeStateError tells which service was charged or cancelled out of order.
type ChargeStateError struct {
	ServiceID ServiceID
	State     ChargeState
	Op        string
}

func (e *ChargeStateError) Error() string {
	return fmt.Sprintf("%s service %s: state is %s", e.Op, e.ServiceID, e.State)
}

func (e *ChargeStateError) Unwrap() error {
	if e.State == Charged {
		return ErrAlreadyCharged
	}
	return ErrNotCharged
}

// RefundError names the service a refund was rejected for.
type RefundError struct {
	ServiceID ServiceID
	RefundID  *string
	Err       error
}

func (e *RefundError) Error() string {
	if e.RefundID != nil {
		return fmt.Sprintf("refund service %s: %v by %s", e.ServiceID, e.Err, *e.RefundID)
	}
	return fmt.Sprintf("refund service %s: %v", e.ServiceID, e.Err)
}

func (e *RefundError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the caller can fix the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDeclined) ||
		errors.Is(err, ErrShiftClosed) ||
		errors.Is(err, ErrShiftAlreadyOpen) ||
		errors.Is(err, ErrAlreadyCharged) ||
		errors.Is(err, ErrNotCharged) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrUnknownIntent) ||
		generic.IsClientError(err)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || generic.IsNotFound(err)
}
