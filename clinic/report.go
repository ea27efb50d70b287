/*
report.go - The daily cash register

PURPOSE:
  A Report is the append-only collection of payments for one business day
  plus the cash that was in the drawer when the shift opened. It is the
  source of truth for the day's cash position.

INVARIANTS:
  1. CashBalance == StartingCash + sum(cash method values of Payments)
  2. At most one report per calendar day
  3. StartingCash == CashBalance of the latest earlier report (0 if none)
  4. Reports are never deleted; payments are only appended

LIFECYCLE:
  Shifts.Open creates today's report (the "open shift" action). Settlement
  appends to it. The next day's Open carries the ending cash forward.
*/
package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT
// =============================================================================

type Report struct {
	Date         generic.TimePoint `json:"date"`
	StartingCash decimal.Decimal   `json:"starting_cash"`
	Payments     []Payment         `json:"payments"`
	OpenedBy     User              `json:"opened_by"`
	OpenedAt     time.Time         `json:"opened_at"`
}

// CashBalance is the cash that should be in the drawer.
func (r Report) CashBalance() decimal.Decimal {
	balance := r.StartingCash
	for _, p := range r.Payments {
		balance = balance.Add(p.CashTotal())
	}
	return balance
}

// MethodTotal sums one method type over every payment of the day.
func (r Report) MethodTotal(t MethodType) decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Payments {
		total = total.Add(p.MethodTotal(t))
	}
	return total
}

// Clone returns a deep copy; stores hand out clones only.
func (r Report) Clone() Report {
	c := r
	c.Payments = make([]Payment, len(r.Payments))
	for i, p := range r.Payments {
		c.Payments[i] = p.Clone()
	}
	return c
}

// =============================================================================
// SHIFTS - Opening and reading daily reports
// =============================================================================

// ReportStore is the slice of Store that Shifts needs.
type ReportStore interface {
	CreateReport(ctx context.Context, report Report) error
	Report(ctx context.Context, day generic.TimePoint) (*Report, error)
	LatestReportBefore(ctx context.Context, day generic.TimePoint) (*Report, error)
}

type Shifts struct {
	store ReportStore
	clock generic.Clock
}

func NewShifts(store ReportStore, clock generic.Clock) *Shifts {
	return &Shifts{store: store, clock: clock}
}

// Open creates today's report with the previous ending cash as its starting
// cash. If today is already open the existing report is returned together
// with ErrShiftAlreadyOpen.
func (s *Shifts) Open(ctx context.Context, actor User) (*Report, error) {
	today := generic.Today(s.clock)

	existing, err := s.store.Report(ctx, today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrShiftAlreadyOpen
	}

	previous, err := s.store.LatestReportBefore(ctx, today)
	if err != nil {
		return nil, err
	}
	starting := decimal.Zero
	if previous != nil {
		starting = previous.CashBalance()
	}

	report := Report{
		Date:         today,
		StartingCash: starting,
		Payments:     []Payment{},
		OpenedBy:     actor,
		OpenedAt:     s.clock.Now(),
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		if errors.Is(err, ErrShiftAlreadyOpen) {
			existing, lookupErr := s.store.Report(ctx, today)
			if lookupErr != nil {
				return nil, fmt.Errorf("open shift %s: %w", today, lookupErr)
			}
			return existing, err
		}
		return nil, fmt.Errorf("open shift %s: %w", today, err)
	}
	return &report, nil
}

// Current returns today's report or ErrShiftClosed.
func (s *Shifts) Current(ctx context.Context) (*Report, error) {
	return s.Get(ctx, generic.Today(s.clock))
}

// Get returns the report of day or ErrShiftClosed.
func (s *Shifts) Get(ctx context.Context, day generic.TimePoint) (*Report, error) {
	report, err := s.store.Report(ctx, day)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", ErrShiftClosed, day)
	}
	return report, nil
}
