package generic

import "fmt"

// =============================================================================
// PERIOD - The reporting range for aggregation
// =============================================================================

// Period is the half-open day range [Start, End).
// Every reporting query is asked for a period, never for a single instant.
//
// Examples:
//   - Day 2025-03-10:   [2025-03-10, 2025-03-11)
//   - Week of Mar 12:   [2025-03-10, 2025-03-17)  (weeks start on Monday)
//   - March 2025:       [2025-03-01, 2025-04-01)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is after start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if !end.After(start) {
		return Period{}, fmt.Errorf("%w: %s..%s", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the day is within [Start, End).
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.Before(p.End)
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.Before(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}

// PeriodKind selects the width of a reporting period.
type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
	PeriodYear  PeriodKind = "year"
)

// ParsePeriodKind accepts the lowercase names above.
func ParsePeriodKind(s string) (PeriodKind, error) {
	switch k := PeriodKind(s); k {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, s)
}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period of the given kind that contains anchor.
func PeriodFor(kind PeriodKind, anchor TimePoint) (Period, error) {
	day := DayOf(anchor.Time)
	switch kind {
	case PeriodDay:
		return Period{Start: day, End: day.AddDays(1)}, nil

	case PeriodWeek:
		start := StartOfWeek(day)
		return Period{Start: start, End: start.AddDays(7)}, nil

	case PeriodMonth:
		start := StartOfMonth(day.Year(), day.Month())
		return Period{Start: start, End: start.AddMonths(1)}, nil

	case PeriodYear:
		start := StartOfYear(day.Year())
		return Period{Start: start, End: start.AddYears(1)}, nil
	}
	return Period{}, fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, kind)
}
