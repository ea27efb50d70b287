/*
Package analytics is the read side of the clinic ledger.

PURPOSE:
  Answers revenue, expense and popularity questions for a period, and
  projects payments and services into per-person statements. Nothing here
  writes; every figure is recomputed from the daily reports on each call.

RECONCILIATION:
  Every Ledger result is a pure fold over Report.Payments of the reports in
  [Start, End). For any period:

    Income(period)       == Σ positive method values over those payments
    Income(period, m...) == the same sum restricted to methods m

  so analytics can always be checked against the registers.

SEE ALSO:
  - clinic/report.go: the reports folded here
  - generic/period.go: period selection
*/
package analytics

import (
	"context"
	"sort"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// ReportSource is the only store capability the ledger needs.
type ReportSource interface {
	ReportsInRange(ctx context.Context, period generic.Period) ([]clinic.Report, error)
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// PurposeExpense is the money spent on one expense category. Amount is
// positive.
type PurposeExpense struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CategoryRevenue is the catalog value of services paid for in a category.
type CategoryRevenue struct {
	Category clinic.Category `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// PricelistItemCount is how often a catalog item was paid for.
type PricelistItemCount struct {
	Item  clinic.PricelistItem `json:"item"`
	Count int                  `json:"count"`
}

// Summary is the one-screen view of a period.
type Summary struct {
	Period         generic.Period                       `json:"-"`
	Reports        int                                  `json:"reports"`
	Payments       int                                  `json:"payments"`
	IncomeByMethod map[clinic.MethodType]decimal.Decimal `json:"income_by_method"`
	Income         decimal.Decimal                      `json:"income"`
	Expense        decimal.Decimal                      `json:"expense"`
	Net            decimal.Decimal                      `json:"net"`
	CashMovement   decimal.Decimal                      `json:"cash_movement"`
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	reports ReportSource
}

func NewLedger(reports ReportSource) *Ledger {
	return &Ledger{reports: reports}
}

// Income sums the positive method values of every payment in period,
// credit included. Given methods restrict the sum to those types.
func (l *Ledger) Income(ctx context.Context, period generic.Period, methods ...clinic.MethodType) (decimal.Decimal, error) {
	allowed := make(map[clinic.MethodType]bool, len(methods))
	for _, m := range methods {
		allowed[m] = true
	}

	total := decimal.Zero
	err := l.each(ctx, period, func(p clinic.Payment) {
		for _, m := range p.Methods {
			if (len(allowed) == 0 || allowed[m.Type]) && m.Value.IsPositive() {
				total = total.Add(m.Value)
			}
		}
	})
	return total, err
}

// MoneyIncome is Income over cash, card and bank transfer: what actually
// came into the clinic, without balance adjustments.
func (l *Ledger) MoneyIncome(ctx context.Context, period generic.Period) (decimal.Decimal, error) {
	return l.Income(ctx, period, clinic.MoneyMethods...)
}

// Expense groups payments whose money value is negative by expense
// category, largest first.
func (l *Ledger) Expense(ctx context.Context, period generic.Period) ([]PurposeExpense, error) {
	byCategory := make(map[string]decimal.Decimal)
	err := l.each(ctx, period, func(p clinic.Payment) {
		value := p.MoneyTotal()
		if !value.IsNegative() {
			return
		}
		cat := p.Purpose.ExpenseCategory()
		byCategory[cat] = byCategory[cat].Add(value.Neg())
	})
	if err != nil {
		return nil, err
	}

	result := make([]PurposeExpense, 0, len(byCategory))
	for cat, amount := range byCategory {
		result = append(result, PurposeExpense{Category: cat, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Amount.Equal(result[j].Amount) {
			return result[i].Amount.GreaterThan(result[j].Amount)
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// CategoriesRevenue sums the frozen price of every service paid for through
// a medical_services payment, per service category.
func (l *Ledger) CategoriesRevenue(ctx context.Context, period generic.Period) ([]CategoryRevenue, error) {
	byCategory := make(map[clinic.Category]decimal.Decimal)
	err := l.eachServiceLine(ctx, period, func(line clinic.ServiceLine) {
		byCategory[line.Item.Category] = byCategory[line.Item.Category].Add(line.Item.Price)
	})
	if err != nil {
		return nil, err
	}

	result := make([]CategoryRevenue, 0, len(byCategory))
	for cat, amount := range byCategory {
		result = append(result, CategoryRevenue{Category: cat, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Amount.Equal(result[j].Amount) {
			return result[i].Amount.GreaterThan(result[j].Amount)
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// CategoryTopServices ranks the catalog items of category by how often they
// were paid for: count descending, then item ID ascending. max <= 0 returns
// every item.
func (l *Ledger) CategoryTopServices(ctx context.Context, category clinic.Category, period generic.Period, max int) ([]PricelistItemCount, error) {
	counts := make(map[string]*PricelistItemCount)
	err := l.eachServiceLine(ctx, period, func(line clinic.ServiceLine) {
		if line.Item.Category != category {
			return
		}
		c, ok := counts[line.Item.ID]
		if !ok {
			c = &PricelistItemCount{Item: line.Item.Snapshot()}
			counts[line.Item.ID] = c
		}
		c.Count++
	})
	if err != nil {
		return nil, err
	}

	result := make([]PricelistItemCount, 0, len(counts))
	for _, c := range counts {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Item.ID < result[j].Item.ID
	})
	if max > 0 && len(result) > max {
		result = result[:max]
	}
	return result, nil
}

// Summary folds the period once into income per method, total expense and
// the net cash movement of the register.
func (l *Ledger) Summary(ctx context.Context, period generic.Period) (Summary, error) {
	reports, err := l.reports.ReportsInRange(ctx, period)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Period:         period,
		Reports:        len(reports),
		IncomeByMethod: make(map[clinic.MethodType]decimal.Decimal),
		Income:         decimal.Zero,
		Expense:        decimal.Zero,
		CashMovement:   decimal.Zero,
	}
	for _, r := range reports {
		for _, p := range r.Payments {
			s.Payments++
			for _, m := range p.Methods {
				if m.Type.IsMoney() && m.Value.IsPositive() {
					s.IncomeByMethod[m.Type] = s.IncomeByMethod[m.Type].Add(m.Value)
					s.Income = s.Income.Add(m.Value)
				}
			}
			if value := p.MoneyTotal(); value.IsNegative() {
				s.Expense = s.Expense.Add(value.Neg())
			}
			s.CashMovement = s.CashMovement.Add(p.CashTotal())
		}
	}
	s.Net = s.Income.Sub(s.Expense)
	return s, nil
}

// =============================================================================
// FOLDS
// =============================================================================

func (l *Ledger) each(ctx context.Context, period generic.Period, fn func(clinic.Payment)) error {
	reports, err := l.reports.ReportsInRange(ctx, period)
	if err != nil {
		return err
	}
	for _, r := range reports {
		for _, p := range r.Payments {
			fn(p)
		}
	}
	return nil
}

func (l *Ledger) eachServiceLine(ctx context.Context, period generic.Period, fn func(clinic.ServiceLine)) error {
	return l.each(ctx, period, func(p clinic.Payment) {
		if p.Purpose.Kind != clinic.PurposeMedicalServices {
			return
		}
		for _, line := range p.Purpose.Services {
			fn(line)
		}
	})
}
