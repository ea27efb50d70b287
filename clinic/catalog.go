package clinic

import "github.com/shopspring/decimal"

// =============================================================================
// PRICELIST - Catalog entries and their frozen snapshots
// =============================================================================

type Category string

// CategoryLaboratory services never pay performer salary.
const CategoryLaboratory Category = "laboratory"

// PricelistItem is a catalog entry. The catalog is mutable; a service keeps a
// Snapshot taken when it was rendered and never looks the item up again.
type PricelistItem struct {
	ID       string          `json:"id"`
	Category Category        `json:"category"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`

	// Overrides: when set they replace the rate-based computation.
	FixedSalary   *decimal.Decimal `json:"fixed_salary,omitempty"`
	FixedAgentFee *decimal.Decimal `json:"fixed_agent_fee,omitempty"`
}

// Snapshot returns a deep copy that shares no pointers with item.
func (item PricelistItem) Snapshot() PricelistItem {
	snap := item
	if item.FixedSalary != nil {
		v := *item.FixedSalary
		snap.FixedSalary = &v
	}
	if item.FixedAgentFee != nil {
		v := *item.FixedAgentFee
		snap.FixedAgentFee = &v
	}
	return snap
}
