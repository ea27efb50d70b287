// Package memory provides an in-memory clinic.TxStore (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory guards a state with an RWMutex. Public methods lock; WithTx hands
// the unlocked state to fn while holding the write lock, and restores a
// snapshot if fn fails.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	accounts     map[generic.AccountID]generic.Account
	transactions map[generic.AccountID][]generic.Transaction
	idempotency  map[string]bool

	patients     map[generic.AccountID]clinic.Patient
	doctors      map[generic.AccountID]clinic.Doctor
	pricelist    map[string]clinic.PricelistItem
	services     map[clinic.ServiceID]clinic.MedicalService
	appointments map[string]clinic.Appointment
	checks       map[string]clinic.Check
	refunds      map[string]clinic.Refund

	reports  map[string]clinic.Report // keyed by day string
	payments map[clinic.PaymentID]string
}

func newState() *state {
	return &state{
		accounts:     make(map[generic.AccountID]generic.Account),
		transactions: make(map[generic.AccountID][]generic.Transaction),
		idempotency:  make(map[string]bool),
		patients:     make(map[generic.AccountID]clinic.Patient),
		doctors:      make(map[generic.AccountID]clinic.Doctor),
		pricelist:    make(map[string]clinic.PricelistItem),
		services:     make(map[clinic.ServiceID]clinic.MedicalService),
		appointments: make(map[string]clinic.Appointment),
		checks:       make(map[string]clinic.Check),
		refunds:      make(map[string]clinic.Refund),
		reports:      make(map[string]clinic.Report),
		payments:     make(map[clinic.PaymentID]string),
	}
}

func New() *Memory {
	return &Memory{st: newState()}
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(clinic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]generic.Transaction(nil), v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.pricelist {
		c.pricelist[k] = v
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.checks {
		c.checks[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.reports {
		c.reports[k] = v.Clone()
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// =============================================================================
// ACCOUNTS & TRANSACTIONS (generic.Store)
// =============================================================================

func (s *state) CreateAccount(_ context.Context, account generic.Account) error {
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("%w: %s", generic.ErrAccountExists, account.ID)
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *state) Account(_ context.Context, id generic.AccountID) (generic.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return generic.Account{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return a, nil
}

func (s *state) Append(_ context.Context, tx generic.Transaction) error {
	return s.appendTx(tx)
}

func (s *state) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if seen[tx.IdempotencyKey] || s.idempotency[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			seen[tx.IdempotencyKey] = true
		}
		if _, ok := s.accounts[tx.AccountID]; !ok {
			return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, tx.AccountID)
		}
	}
	for _, tx := range txs {
		if err := s.appendTx(tx); err != nil {
			return err
		}
	}
	return nil
}

// appendTx inserts tx in EffectiveAt order and applies its delta.
func (s *state) appendTx(tx generic.Transaction) error {
	account, ok := s.accounts[tx.AccountID]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, tx.AccountID)
	}
	if tx.IdempotencyKey != "" && s.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	txs := s.transactions[tx.AccountID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	s.transactions[tx.AccountID] = txs

	account.Balance = account.Balance.Add(tx.Delta)
	s.accounts[tx.AccountID] = account

	if tx.IdempotencyKey != "" {
		s.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (s *state) Load(_ context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	return append([]generic.Transaction(nil), s.transactions[id]...), nil
}

func (s *state) LoadRange(_ context.Context, id generic.AccountID, from, to time.Time) ([]generic.Transaction, error) {
	var result []generic.Transaction
	for _, tx := range s.transactions[id] {
		if !tx.EffectiveAt.Before(from) && tx.EffectiveAt.Before(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *state) Exists(_ context.Context, key string) (bool, error) {
	return s.idempotency[key], nil
}

// =============================================================================
// PEOPLE & CATALOG
// =============================================================================

func (s *state) SavePatient(ctx context.Context, p clinic.Patient) error {
	if err := clinic.EnsureAccount(ctx, s, p); err != nil {
		return err
	}
	s.patients[p.ID] = p
	return nil
}

func (s *state) Patient(_ context.Context, id generic.AccountID) (clinic.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return clinic.Patient{}, fmt.Errorf("patient %s: %w", id, clinic.ErrNotFound)
	}
	return p, nil
}

func (s *state) ListPatients(_ context.Context) ([]clinic.Patient, error) {
	result := make([]clinic.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SaveDoctor(ctx context.Context, d clinic.Doctor) error {
	if err := clinic.EnsureAccount(ctx, s, d); err != nil {
		return err
	}
	s.doctors[d.ID] = d
	return nil
}

func (s *state) Doctor(_ context.Context, id generic.AccountID) (clinic.Doctor, error) {
	d, ok := s.doctors[id]
	if !ok {
		return clinic.Doctor{}, fmt.Errorf("doctor %s: %w", id, clinic.ErrNotFound)
	}
	return d, nil
}

func (s *state) ListDoctors(_ context.Context) ([]clinic.Doctor, error) {
	result := make([]clinic.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SavePricelistItem(_ context.Context, item clinic.PricelistItem) error {
	s.pricelist[item.ID] = item.Snapshot()
	return nil
}

func (s *state) PricelistItem(_ context.Context, id string) (clinic.PricelistItem, error) {
	item, ok := s.pricelist[id]
	if !ok {
		return clinic.PricelistItem{}, fmt.Errorf("pricelist item %s: %w", id, clinic.ErrNotFound)
	}
	return item.Snapshot(), nil
}

func (s *state) ListPricelist(_ context.Context) ([]clinic.PricelistItem, error) {
	result := make([]clinic.PricelistItem, 0, len(s.pricelist))
	for _, item := range s.pricelist {
		result = append(result, item.Snapshot())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// SERVICES, APPOINTMENTS, CHECKS, REFUNDS
// =============================================================================

func (s *state) SaveService(_ context.Context, svc clinic.MedicalService) error {
	s.services[svc.ID] = svc
	return nil
}

func (s *state) Service(_ context.Context, id clinic.ServiceID) (clinic.MedicalService, error) {
	svc, ok := s.services[id]
	if !ok {
		return clinic.MedicalService{}, fmt.Errorf("service %s: %w", id, clinic.ErrNotFound)
	}
	return svc, nil
}

func (s *state) SaveAppointment(_ context.Context, a clinic.Appointment) error {
	s.appointments[a.ID] = a
	return nil
}

func (s *state) Appointment(_ context.Context, id string) (clinic.Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return clinic.Appointment{}, fmt.Errorf("appointment %s: %w", id, clinic.ErrNotFound)
	}
	return a, nil
}

func (s *state) SaveCheck(_ context.Context, c clinic.Check) error {
	s.checks[c.ID] = c
	return nil
}

func (s *state) Check(_ context.Context, id string) (clinic.Check, error) {
	c, ok := s.checks[id]
	if !ok {
		return clinic.Check{}, fmt.Errorf("check %s: %w", id, clinic.ErrNotFound)
	}
	return c, nil
}

func (s *state) SaveRefund(_ context.Context, r clinic.Refund) error {
	s.refunds[r.ID] = r
	return nil
}

func (s *state) Refund(_ context.Context, id string) (clinic.Refund, error) {
	r, ok := s.refunds[id]
	if !ok {
		return clinic.Refund{}, fmt.Errorf("refund %s: %w", id, clinic.ErrNotFound)
	}
	return r, nil
}

// =============================================================================
// REPORTS & PAYMENTS
// =============================================================================

func (s *state) CreateReport(_ context.Context, report clinic.Report) error {
	key := report.Date.String()
	if _, ok := s.reports[key]; ok {
		return clinic.ErrShiftAlreadyOpen
	}
	s.reports[key] = report.Clone()
	return nil
}

func (s *state) Report(_ context.Context, day generic.TimePoint) (*clinic.Report, error) {
	r, ok := s.reports[generic.DayOf(day.Time).String()]
	if !ok {
		return nil, nil
	}
	c := r.Clone()
	return &c, nil
}

func (s *state) LatestReportBefore(_ context.Context, day generic.TimePoint) (*clinic.Report, error) {
	var latest *clinic.Report
	for _, r := range s.reports {
		if !r.Date.Before(day) {
			continue
		}
		if latest == nil || r.Date.After(latest.Date) {
			c := r.Clone()
			latest = &c
		}
	}
	return latest, nil
}

func (s *state) AppendPayment(_ context.Context, day generic.TimePoint, p clinic.Payment) error {
	key := generic.DayOf(day.Time).String()
	r, ok := s.reports[key]
	if !ok {
		return fmt.Errorf("%w: %s", clinic.ErrShiftClosed, key)
	}
	if _, dup := s.payments[p.ID]; dup {
		return fmt.Errorf("payment %s: %w", p.ID, generic.ErrDuplicateIdempotencyKey)
	}
	r.Payments = append(r.Payments, p.Clone())
	s.reports[key] = r
	s.payments[p.ID] = key
	return nil
}

func (s *state) Payment(_ context.Context, id clinic.PaymentID) (clinic.Payment, error) {
	key, ok := s.payments[id]
	if !ok {
		return clinic.Payment{}, fmt.Errorf("payment %s: %w", id, clinic.ErrNotFound)
	}
	for _, p := range s.reports[key].Payments {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return clinic.Payment{}, fmt.Errorf("payment %s: %w", id, clinic.ErrNotFound)
}

func (s *state) ReportsInRange(_ context.Context, period generic.Period) ([]clinic.Report, error) {
	var result []clinic.Report
	for _, r := range s.reports {
		if period.Contains(r.Date) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// =============================================================================
// LOCKED ACCESSORS - Memory implements clinic.TxStore
// =============================================================================

func read[T any](m *Memory, fn func(*state) (T, error)) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.st)
}

func (m *Memory) write(fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) CreateAccount(ctx context.Context, a generic.Account) error {
	return m.write(func(s *state) error { return s.CreateAccount(ctx, a) })
}

func (m *Memory) Account(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	return read(m, func(s *state) (generic.Account, error) { return s.Account(ctx, id) })
}

func (m *Memory) Append(ctx context.Context, tx generic.Transaction) error {
	return m.write(func(s *state) error { return s.Append(ctx, tx) })
}

func (m *Memory) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return m.write(func(s *state) error { return s.AppendBatch(ctx, txs) })
}

func (m *Memory) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	return read(m, func(s *state) ([]generic.Transaction, error) { return s.Load(ctx, id) })
}

func (m *Memory) LoadRange(ctx context.Context, id generic.AccountID, from, to time.Time) ([]generic.Transaction, error) {
	return read(m, func(s *state) ([]generic.Transaction, error) { return s.LoadRange(ctx, id, from, to) })
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	return read(m, func(s *state) (bool, error) { return s.Exists(ctx, key) })
}

func (m *Memory) SavePatient(ctx context.Context, p clinic.Patient) error {
	return m.write(func(s *state) error { return s.SavePatient(ctx, p) })
}

func (m *Memory) Patient(ctx context.Context, id generic.AccountID) (clinic.Patient, error) {
	return read(m, func(s *state) (clinic.Patient, error) { return s.Patient(ctx, id) })
}

func (m *Memory) ListPatients(ctx context.Context) ([]clinic.Patient, error) {
	return read(m, func(s *state) ([]clinic.Patient, error) { return s.ListPatients(ctx) })
}

func (m *Memory) SaveDoctor(ctx context.Context, d clinic.Doctor) error {
	return m.write(func(s *state) error { return s.SaveDoctor(ctx, d) })
}

func (m *Memory) Doctor(ctx context.Context, id generic.AccountID) (clinic.Doctor, error) {
	return read(m, func(s *state) (clinic.Doctor, error) { return s.Doctor(ctx, id) })
}

func (m *Memory) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	return read(m, func(s *state) ([]clinic.Doctor, error) { return s.ListDoctors(ctx) })
}

func (m *Memory) SavePricelistItem(ctx context.Context, item clinic.PricelistItem) error {
	return m.write(func(s *state) error { return s.SavePricelistItem(ctx, item) })
}

func (m *Memory) PricelistItem(ctx context.Context, id string) (clinic.PricelistItem, error) {
	return read(m, func(s *state) (clinic.PricelistItem, error) { return s.PricelistItem(ctx, id) })
}

func (m *Memory) ListPricelist(ctx context.Context) ([]clinic.PricelistItem, error) {
	return read(m, func(s *state) ([]clinic.PricelistItem, error) { return s.ListPricelist(ctx) })
}

func (m *Memory) SaveService(ctx context.Context, svc clinic.MedicalService) error {
	return m.write(func(s *state) error { return s.SaveService(ctx, svc) })
}

func (m *Memory) Service(ctx context.Context, id clinic.ServiceID) (clinic.MedicalService, error) {
	return read(m, func(s *state) (clinic.MedicalService, error) { return s.Service(ctx, id) })
}

func (m *Memory) SaveAppointment(ctx context.Context, a clinic.Appointment) error {
	return m.write(func(s *state) error { return s.SaveAppointment(ctx, a) })
}

func (m *Memory) Appointment(ctx context.Context, id string) (clinic.Appointment, error) {
	return read(m, func(s *state) (clinic.Appointment, error) { return s.Appointment(ctx, id) })
}

func (m *Memory) SaveCheck(ctx context.Context, c clinic.Check) error {
	return m.write(func(s *state) error { return s.SaveCheck(ctx, c) })
}

func (m *Memory) Check(ctx context.Context, id string) (clinic.Check, error) {
	return read(m, func(s *state) (clinic.Check, error) { return s.Check(ctx, id) })
}

func (m *Memory) SaveRefund(ctx context.Context, r clinic.Refund) error {
	return m.write(func(s *state) error { return s.SaveRefund(ctx, r) })
}

func (m *Memory) Refund(ctx context.Context, id string) (clinic.Refund, error) {
	return read(m, func(s *state) (clinic.Refund, error) { return s.Refund(ctx, id) })
}

func (m *Memory) CreateReport(ctx context.Context, r clinic.Report) error {
	return m.write(func(s *state) error { return s.CreateReport(ctx, r) })
}

func (m *Memory) Report(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	return read(m, func(s *state) (*clinic.Report, error) { return s.Report(ctx, day) })
}

func (m *Memory) LatestReportBefore(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	return read(m, func(s *state) (*clinic.Report, error) { return s.LatestReportBefore(ctx, day) })
}

func (m *Memory) AppendPayment(ctx context.Context, day generic.TimePoint, p clinic.Payment) error {
	return m.write(func(s *state) error { return s.AppendPayment(ctx, day, p) })
}

func (m *Memory) Payment(ctx context.Context, id clinic.PaymentID) (clinic.Payment, error) {
	return read(m, func(s *state) (clinic.Payment, error) { return s.Payment(ctx, id) })
}

func (m *Memory) ReportsInRange(ctx context.Context, period generic.Period) ([]clinic.Report, error) {
	return read(m, func(s *state) ([]clinic.Report, error) { return s.ReportsInRange(ctx, period) })
}

var (
	_ clinic.TxStore = (*Memory)(nil)
	_ clinic.Store   = (*state)(nil)
)
