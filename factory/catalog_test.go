package factory

import (
	"context"
	"testing"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog_Demo(t *testing.T) {
	catalog, err := NewCatalogFactory().ParseCatalog(DemoCatalogJSON())
	require.NoError(t, err)

	require.Len(t, catalog.Pricelist, 5)
	require.Len(t, catalog.Doctors, 4)

	mri := catalog.Pricelist[2]
	assert.Equal(t, "mri-knee", mri.ID)
	assert.Equal(t, clinic.Category("radiology"), mri.Category)
	assert.Equal(t, "5000", mri.Price.String())
	require.NotNil(t, mri.FixedAgentFee)
	assert.Equal(t, "150", mri.FixedAgentFee.String())
	assert.Nil(t, mri.FixedSalary)

	assert.Equal(t, clinic.CategoryLaboratory, catalog.Pricelist[3].Category)
	assert.Equal(t, "0.4", catalog.Doctors[0].PerformerRate.String())
	assert.Nil(t, catalog.Doctors[3].PerformerRate, "a referrer is not paid per service")
}

func TestParseCatalog_NumbersAndDefaults(t *testing.T) {
	// Prices given as JSON numbers parse exactly; a missing title defaults to the id
	catalog, err := NewCatalogFactory().ParseCatalog(`{"pricelist":[{"id":"x","category":"lab","price":1234.56}]}`)
	require.NoError(t, err)

	assert.Equal(t, "1234.56", catalog.Pricelist[0].Price.String())
	assert.Equal(t, "x", catalog.Pricelist[0].Title)
	assert.Empty(t, catalog.Doctors)
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing item id", `{"pricelist":[{"price":"10"}]}`},
		{"negative price", `{"pricelist":[{"id":"a","price":"-1"}]}`},
		{"negative fixed salary", `{"pricelist":[{"id":"a","price":"1","fixed_salary":"-5"}]}`},
		{"negative agent fee", `{"pricelist":[{"id":"a","price":"1","fixed_agent_fee":"-5"}]}`},
		{"duplicate item", `{"pricelist":[{"id":"a","price":"1"},{"id":"a","price":"2"}]}`},
		{"missing doctor id", `{"pricelist":[],"doctors":[{"first_name":"A"}]}`},
		{"rate above one", `{"pricelist":[],"doctors":[{"id":"d","performer_rate":"1.5"}]}`},
		{"negative rate", `{"pricelist":[],"doctors":[{"id":"d","performer_rate":"-0.1"}]}`},
		{"duplicate doctor", `{"pricelist":[],"doctors":[{"id":"d"},{"id":"d"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalogFactory().ParseCatalog(tt.json)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}

	_, err := NewCatalogFactory().ParseCatalog(`{not json`)
	assert.Error(t, err)
}

func TestCatalog_ApplyAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	f := NewCatalogFactory()

	catalog, err := f.ParseCatalog(DemoCatalogJSON())
	require.NoError(t, err)
	require.NoError(t, catalog.Apply(ctx, store))

	items, err := store.ListPricelist(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	// Doctors get an account on import
	_, err = store.Account(ctx, "doc-ivanova")
	assert.NoError(t, err)

	// Exporting and parsing again yields the same catalog
	doctors, err := store.ListDoctors(ctx)
	require.NoError(t, err)
	again, err := f.FromJSON(f.ToJSON(items, doctors))
	require.NoError(t, err)
	assert.Len(t, again.Pricelist, 5)
	assert.Len(t, again.Doctors, 4)
}
