/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions (the pricelist and the staff with their
  piece rates) into clinic.PricelistItem and clinic.Doctor values. Front-desk
  managers edit the price sheet as a file; the factory validates it and
  creates the proper Go structs.

JSON SCHEMA:
  {
    "pricelist": [
      {
        "id": "mri-knee",
        "category": "radiology",
        "title": "MRI, knee",
        "price": "3000",
        "fixed_salary": "600",
        "fixed_agent_fee": "150"
      }
    ],
    "doctors": [
      {
        "id": "doc-ivanova",
        "first_name": "Anna",
        "last_name": "Ivanova",
        "specialization": "radiology",
        "performer_rate": "0.4"
      }
    ]
  }

  Money and rates are decimal strings or numbers. Both parse exactly.

VALIDATION:
  - ids are required and unique within their list
  - prices and fixed amounts are not negative
  - a performer rate is within [0, 1]

USAGE:
  f := NewCatalogFactory()
  catalog, err := f.ParseCatalog(jsonString)
  if err != nil {
      return err
  }
  err = catalog.Apply(ctx, store)

SEE ALSO:
  - clinic/catalog.go: PricelistItem
  - clinic/person.go: Doctor
  - cmd/server: the import-pricelist command
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/shopspring/decimal"
)

// ErrInvalidCatalog wraps every validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog file.
type CatalogJSON struct {
	Pricelist []PricelistItemJSON `json:"pricelist"`
	Doctors   []DoctorJSON        `json:"doctors,omitempty"`
}

// PricelistItemJSON represents one catalog entry.
type PricelistItemJSON struct {
	ID            string           `json:"id"`
	Category      string           `json:"category"`
	Title         string           `json:"title"`
	Price         decimal.Decimal  `json:"price"`
	FixedSalary   *decimal.Decimal `json:"fixed_salary,omitempty"`
	FixedAgentFee *decimal.Decimal `json:"fixed_agent_fee,omitempty"`
}

// DoctorJSON represents a staff member.
type DoctorJSON struct {
	ID             string           `json:"id"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	Specialization string           `json:"specialization,omitempty"`
	PerformerRate  *decimal.Decimal `json:"performer_rate,omitempty"`
}

// Catalog is the parsed and validated result.
type Catalog struct {
	Pricelist []clinic.PricelistItem
	Doctors   []clinic.Doctor
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs to Go structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON string into a Catalog.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and converts it.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	catalog := &Catalog{}

	seen := make(map[string]bool, len(cj.Pricelist))
	for i, ij := range cj.Pricelist {
		item, err := parseItem(ij)
		if err != nil {
			return nil, fmt.Errorf("pricelist[%d]: %w", i, err)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("pricelist[%d]: %w: duplicate id %q", i, ErrInvalidCatalog, item.ID)
		}
		seen[item.ID] = true
		catalog.Pricelist = append(catalog.Pricelist, item)
	}

	seen = make(map[string]bool, len(cj.Doctors))
	for i, dj := range cj.Doctors {
		doctor, err := parseDoctor(dj)
		if err != nil {
			return nil, fmt.Errorf("doctors[%d]: %w", i, err)
		}
		if seen[dj.ID] {
			return nil, fmt.Errorf("doctors[%d]: %w: duplicate id %q", i, ErrInvalidCatalog, dj.ID)
		}
		seen[dj.ID] = true
		catalog.Doctors = append(catalog.Doctors, doctor)
	}

	return catalog, nil
}

// ToJSON converts a pricelist and staff back to their JSON form.
func (f *CatalogFactory) ToJSON(items []clinic.PricelistItem, doctors []clinic.Doctor) CatalogJSON {
	cj := CatalogJSON{Pricelist: make([]PricelistItemJSON, 0, len(items))}
	for _, item := range items {
		cj.Pricelist = append(cj.Pricelist, PricelistItemJSON{
			ID:            item.ID,
			Category:      string(item.Category),
			Title:         item.Title,
			Price:         item.Price,
			FixedSalary:   item.FixedSalary,
			FixedAgentFee: item.FixedAgentFee,
		})
	}
	for _, d := range doctors {
		cj.Doctors = append(cj.Doctors, DoctorJSON{
			ID:             string(d.ID),
			FirstName:      d.FirstName,
			LastName:       d.LastName,
			Specialization: d.Specialization,
			PerformerRate:  d.PerformerRate,
		})
	}
	return cj
}

// CatalogWriter is the slice of clinic.Store the import needs.
type CatalogWriter interface {
	SavePricelistItem(ctx context.Context, item clinic.PricelistItem) error
	SaveDoctor(ctx context.Context, d clinic.Doctor) error
}

// Apply saves every item and doctor. Existing records with the same id are
// replaced; services already rendered keep their frozen snapshot.
func (c *Catalog) Apply(ctx context.Context, store CatalogWriter) error {
	for _, item := range c.Pricelist {
		if err := store.SavePricelistItem(ctx, item); err != nil {
			return fmt.Errorf("save pricelist item %s: %w", item.ID, err)
		}
	}
	for _, d := range c.Doctors {
		if err := store.SaveDoctor(ctx, d); err != nil {
			return fmt.Errorf("save doctor %s: %w", d.ID, err)
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseItem(ij PricelistItemJSON) (clinic.PricelistItem, error) {
	if ij.ID == "" {
		return clinic.PricelistItem{}, fmt.Errorf("%w: item id is required", ErrInvalidCatalog)
	}
	if ij.Price.IsNegative() {
		return clinic.PricelistItem{}, fmt.Errorf("%w: item %s has negative price", ErrInvalidCatalog, ij.ID)
	}
	if err := nonNegative(ij.ID, "fixed_salary", ij.FixedSalary); err != nil {
		return clinic.PricelistItem{}, err
	}
	if err := nonNegative(ij.ID, "fixed_agent_fee", ij.FixedAgentFee); err != nil {
		return clinic.PricelistItem{}, err
	}

	title := ij.Title
	if title == "" {
		title = ij.ID
	}
	item := clinic.PricelistItem{
		ID:            ij.ID,
		Category:      clinic.Category(ij.Category),
		Title:         title,
		Price:         ij.Price,
		FixedSalary:   ij.FixedSalary,
		FixedAgentFee: ij.FixedAgentFee,
	}
	return item.Snapshot(), nil
}

func parseDoctor(dj DoctorJSON) (clinic.Doctor, error) {
	if dj.ID == "" {
		return clinic.Doctor{}, fmt.Errorf("%w: doctor id is required", ErrInvalidCatalog)
	}
	d := clinic.Doctor{
		ID:             generic.AccountID(dj.ID),
		FirstName:      dj.FirstName,
		LastName:       dj.LastName,
		Specialization: dj.Specialization,
	}
	if dj.PerformerRate != nil {
		rate := *dj.PerformerRate
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return clinic.Doctor{}, fmt.Errorf("%w: doctor %s performer_rate %s outside [0, 1]", ErrInvalidCatalog, dj.ID, rate)
		}
		d.PerformerRate = &rate
	}
	return d, nil
}

func nonNegative(id, field string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return fmt.Errorf("%w: item %s has negative %s", ErrInvalidCatalog, id, field)
	}
	return nil
}

// =============================================================================
// PRESET CATALOG
// =============================================================================

// DemoCatalogJSON is a small clinic used by the demo scenarios and as an
// example import file.
func DemoCatalogJSON() string {
	return `{
  "pricelist": [
    {"id": "consult", "category": "therapy", "title": "Initial consultation", "price": "1500"},
    {"id": "xray-chest", "category": "radiology", "title": "Chest X-ray", "price": "1000"},
    {"id": "mri-knee", "category": "radiology", "title": "MRI, knee", "price": "5000", "fixed_agent_fee": "150"},
    {"id": "blood-panel", "category": "laboratory", "title": "Blood panel", "price": "300"},
    {"id": "ecg", "category": "cardiology", "title": "ECG", "price": "800", "fixed_salary": "200"}
  ],
  "doctors": [
    {"id": "doc-ivanova", "first_name": "Anna", "last_name": "Ivanova", "specialization": "radiology", "performer_rate": "0.4"},
    {"id": "doc-petrov", "first_name": "Ilya", "last_name": "Petrov", "specialization": "therapy", "performer_rate": "0.3"},
    {"id": "doc-sidorova", "first_name": "Maria", "last_name": "Sidorova", "specialization": "cardiology", "performer_rate": "0.25"},
    {"id": "doc-referrer", "first_name": "Oleg", "last_name": "Smirnov", "specialization": "general practice"}
  ]
}`
}
