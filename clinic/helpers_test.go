package clinic_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/frontdesk/ledger/store/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var (
	registrar     = clinic.User{ID: "reg-1", Name: "Front Desk", AccessLevel: clinic.AccessRegistrar}
	registrarTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func cash(v string) clinic.Method { return clinic.Method{Type: clinic.MethodCash, Value: dec(v)} }
func card(v string) clinic.Method { return clinic.Method{Type: clinic.MethodCard, Value: dec(v)} }

type desk struct {
	t     *testing.T
	ctx   context.Context
	clock *generic.FixedClock
	store *memory.Memory
	ctrl  *clinic.Controller
	seq   int
}

// newDesk returns a clinic with today's shift open.
func newDesk(t *testing.T) *desk {
	t.Helper()
	d := &desk{
		t:     t,
		ctx:   context.Background(),
		clock: generic.NewFixedClock(registrarTime),
		store: memory.New(),
	}
	d.ctrl = clinic.NewController(d.store, d.clock, zerolog.Nop())
	_, err := clinic.NewShifts(d.store, d.clock).Open(d.ctx, registrar)
	require.NoError(t, err)
	return d
}

func (d *desk) patient(id string) generic.AccountID {
	d.t.Helper()
	require.NoError(d.t, d.store.SavePatient(d.ctx, clinic.Patient{ID: generic.AccountID(id), FirstName: id}))
	return generic.AccountID(id)
}

func (d *desk) doctor(id string, rate *decimal.Decimal) clinic.Doctor {
	d.t.Helper()
	doc := clinic.Doctor{ID: generic.AccountID(id), FirstName: id, PerformerRate: rate}
	require.NoError(d.t, d.store.SaveDoctor(d.ctx, doc))
	return doc
}

func (d *desk) render(item clinic.PricelistItem, performer, agent *clinic.Doctor) clinic.MedicalService {
	d.t.Helper()
	d.seq++
	s := clinic.Render(clinic.ServiceID(fmt.Sprintf("svc-%d", d.seq)), item, performer, agent, d.clock.Now())
	require.NoError(d.t, d.store.SaveService(d.ctx, s))
	return s
}

// bill books an appointment for patient and returns a check for services.
func (d *desk) bill(patient generic.AccountID, services ...clinic.MedicalService) clinic.Check {
	d.t.Helper()
	d.seq++
	ids := make([]clinic.ServiceID, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}
	appt := clinic.Appointment{
		ID:         fmt.Sprintf("appt-%d", d.seq),
		PatientID:  &patient,
		ServiceIDs: ids,
		Status:     clinic.AppointmentScheduled,
	}
	require.NoError(d.t, d.store.SaveAppointment(d.ctx, appt))
	check := clinic.Check{ID: fmt.Sprintf("check-%d", d.seq), Services: services, AppointmentIDs: []string{appt.ID}}
	require.NoError(d.t, d.store.SaveCheck(d.ctx, check))
	return check
}

func (d *desk) balance(id generic.AccountID) decimal.Decimal {
	d.t.Helper()
	account, err := d.store.Account(d.ctx, id)
	require.NoError(d.t, err)
	return account.Balance
}

func (d *desk) report() *clinic.Report {
	d.t.Helper()
	r, err := clinic.NewShifts(d.store, d.clock).Current(d.ctx)
	require.NoError(d.t, err)
	return r
}

func (d *desk) service(id clinic.ServiceID) clinic.MedicalService {
	d.t.Helper()
	s, err := d.store.Service(d.ctx, id)
	require.NoError(d.t, err)
	return s
}

// verify asserts balance == replayed log for every account given.
func (d *desk) verify(ids ...generic.AccountID) {
	d.t.Helper()
	ledger := generic.NewLedger(d.store)
	for _, id := range ids {
		require.NoError(d.t, ledger.Verify(d.ctx, id), "conservation for %s", id)
	}
}

func xray() clinic.PricelistItem {
	return clinic.PricelistItem{ID: "xray", Category: "radiology", Title: "X-ray", Price: dec("1000")}
}
