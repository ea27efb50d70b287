/*
Package sqlite provides a SQLite-backed implementation of clinic.TxStore.

PURPOSE:
  Persists accounts, the append-only transaction log, daily reports with
  their payments, and the clinic records the settlement engine reads
  (people, pricelist, services, appointments, checks, refunds).

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on transactions or payments
  - accounts.balance is only written by appendTx, in the same SQL
    transaction as the row it accounts for
  - Corrections are new rows

KEY TABLES:
  accounts:      Balance holders with their materialized balance
  transactions:  Immutable ledger of all balance changes
  reports:       One row per business day (date is the key)
  payments:      Report payments in append order, stored as JSON
  patients, doctors, pricelist, services, appointments, checks, refunds:
                 Mutable records stored as JSON documents by id

MONEY:
  Decimal values are stored as TEXT and parsed back with shopspring/decimal.
  Nothing passes through float64.

CONCURRENCY:
  A single connection plus a sync.RWMutex. WithTx holds the write lock and
  hands fn a view bound to the *sql.Tx, so every read inside a settlement
  sees the settlement's own uncommitted writes.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - clinic/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/mattn/go-sqlite3"
)

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dayLayout = "2006-01-02"

// Store implements clinic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		effective_at TEXT NOT NULL,
		delta TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		role TEXT,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance replay and statements (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, effective_at);

	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(tx_type);

	-- Daily cash registers
	CREATE TABLE IF NOT EXISTS reports (
		date TEXT PRIMARY KEY,
		starting_cash TEXT NOT NULL,
		opened_by_json TEXT NOT NULL,
		opened_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		report_date TEXT NOT NULL REFERENCES reports(date),
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_report
		ON payments(report_date);

	-- Clinic records
	CREATE TABLE IF NOT EXISTS patients (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS doctors (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS pricelist (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS services (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS appointments (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS checks (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	CREATE TABLE IF NOT EXISTS refunds (id TEXT PRIMARY KEY, data_json TEXT NOT NULL, updated_at TEXT NOT NULL);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIER - *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements clinic.Store over a querier without locking. Store owns
// the locking and the SQL transaction boundaries.
type conn struct {
	q querier
}

// =============================================================================
// TRANSACTIONAL STORE (clinic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store clinic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// inTx runs fn in a SQL transaction. Callers hold the write lock.
func (s *Store) inTx(ctx context.Context, fn func(*conn) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) write(ctx context.Context, fn func(*conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, fn)
}

func read[T any](s *Store, fn func(*conn) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&conn{q: s.db})
}

// =============================================================================
// ACCOUNTS & TRANSACTIONS (generic.Store interface)
// =============================================================================

func (c *conn) CreateAccount(ctx context.Context, account generic.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO accounts (id, kind, balance, created_at) VALUES (?, ?, ?, ?)",
		account.ID, account.Kind, account.Balance.String(), formatTime(createdAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", generic.ErrAccountExists, account.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (c *conn) Account(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	var (
		account   generic.Account
		balance   string
		createdAt string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, kind, balance, created_at FROM accounts WHERE id = ?", id,
	).Scan(&account.ID, &account.Kind, &balance, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	if err != nil {
		return generic.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	account.Balance = generic.MustParseDecimal(balance)
	account.CreatedAt = parseTime(createdAt)
	return account, nil
}

func (c *conn) Append(ctx context.Context, tx generic.Transaction) error {
	return c.appendTx(ctx, tx)
}

// AppendBatch relies on the enclosing SQL transaction for atomicity.
func (c *conn) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if seen[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			seen[tx.IdempotencyKey] = true
		}
	}
	for _, tx := range txs {
		if err := c.appendTx(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// appendTx inserts the row and applies its delta to the account.
func (c *conn) appendTx(ctx context.Context, tx generic.Transaction) error {
	account, err := c.Account(ctx, tx.AccountID)
	if err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, account_id, effective_at, delta, tx_type, role, reference_id, reason,
		 idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.AccountID,
		formatTime(tx.EffectiveAt),
		tx.Delta.String(),
		tx.Type,
		nullString(tx.Role),
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		formatTime(createdAt),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	_, err = c.q.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?",
		account.Balance.Add(tx.Delta).String(), tx.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

const transactionColumns = `id, account_id, effective_at, delta, tx_type, role, reference_id, reason,
	idempotency_key, metadata_json, created_by, created_at`

func (c *conn) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		ORDER BY effective_at ASC, rowid ASC
	`, id)
}

func (c *conn) LoadRange(ctx context.Context, id generic.AccountID, from, to time.Time) ([]generic.Transaction, error) {
	return c.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND effective_at >= ? AND effective_at < ?
		ORDER BY effective_at ASC, rowid ASC
	`, id, formatTime(from), formatTime(to))
}

func (c *conn) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (c *conn) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		delta          string
		role           sql.NullString
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.AccountID, &effectiveAt, &delta, &tx.Type, &role,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.EffectiveAt = parseTime(effectiveAt)
	tx.Delta = generic.MustParseDecimal(delta)
	tx.Role = role.String
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("failed to decode metadata of %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}

// =============================================================================
// JSON RECORDS - People, catalog, services, appointments, checks, refunds
// =============================================================================

// table names are constants below, never caller input.
const (
	tablePatients     = "patients"
	tableDoctors      = "doctors"
	tablePricelist    = "pricelist"
	tableServices     = "services"
	tableAppointments = "appointments"
	tableChecks       = "checks"
	tableRefunds      = "refunds"
)

func (c *conn) saveRecord(ctx context.Context, table, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", table, id, err)
	}
	_, err = c.q.ExecContext(ctx,
		"INSERT INTO "+table+" (id, data_json, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at",
		id, string(data), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", table, id, err)
	}
	return nil
}

func (c *conn) loadRecord(ctx context.Context, table, id string, v any) error {
	var data string
	err := c.q.QueryRowContext(ctx, "SELECT data_json FROM "+table+" WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, clinic.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", table, id, err)
	}
	return json.Unmarshal([]byte(data), v)
}

func listRecords[T any](ctx context.Context, c *conn, table string) ([]T, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT data_json FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", table, err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (c *conn) SavePatient(ctx context.Context, p clinic.Patient) error {
	if err := clinic.EnsureAccount(ctx, c, p); err != nil {
		return err
	}
	return c.saveRecord(ctx, tablePatients, string(p.ID), p)
}

func (c *conn) Patient(ctx context.Context, id generic.AccountID) (clinic.Patient, error) {
	var p clinic.Patient
	return p, c.loadRecord(ctx, tablePatients, string(id), &p)
}

func (c *conn) ListPatients(ctx context.Context) ([]clinic.Patient, error) {
	return listRecords[clinic.Patient](ctx, c, tablePatients)
}

func (c *conn) SaveDoctor(ctx context.Context, d clinic.Doctor) error {
	if err := clinic.EnsureAccount(ctx, c, d); err != nil {
		return err
	}
	return c.saveRecord(ctx, tableDoctors, string(d.ID), d)
}

func (c *conn) Doctor(ctx context.Context, id generic.AccountID) (clinic.Doctor, error) {
	var d clinic.Doctor
	return d, c.loadRecord(ctx, tableDoctors, string(id), &d)
}

func (c *conn) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	return listRecords[clinic.Doctor](ctx, c, tableDoctors)
}

func (c *conn) SavePricelistItem(ctx context.Context, item clinic.PricelistItem) error {
	return c.saveRecord(ctx, tablePricelist, item.ID, item)
}

func (c *conn) PricelistItem(ctx context.Context, id string) (clinic.PricelistItem, error) {
	var item clinic.PricelistItem
	return item, c.loadRecord(ctx, tablePricelist, id, &item)
}

func (c *conn) ListPricelist(ctx context.Context) ([]clinic.PricelistItem, error) {
	return listRecords[clinic.PricelistItem](ctx, c, tablePricelist)
}

func (c *conn) SaveService(ctx context.Context, s clinic.MedicalService) error {
	return c.saveRecord(ctx, tableServices, string(s.ID), s)
}

func (c *conn) Service(ctx context.Context, id clinic.ServiceID) (clinic.MedicalService, error) {
	var s clinic.MedicalService
	return s, c.loadRecord(ctx, tableServices, string(id), &s)
}

func (c *conn) SaveAppointment(ctx context.Context, a clinic.Appointment) error {
	return c.saveRecord(ctx, tableAppointments, a.ID, a)
}

func (c *conn) Appointment(ctx context.Context, id string) (clinic.Appointment, error) {
	var a clinic.Appointment
	return a, c.loadRecord(ctx, tableAppointments, id, &a)
}

func (c *conn) SaveCheck(ctx context.Context, ch clinic.Check) error {
	return c.saveRecord(ctx, tableChecks, ch.ID, ch)
}

func (c *conn) Check(ctx context.Context, id string) (clinic.Check, error) {
	var ch clinic.Check
	return ch, c.loadRecord(ctx, tableChecks, id, &ch)
}

func (c *conn) SaveRefund(ctx context.Context, r clinic.Refund) error {
	return c.saveRecord(ctx, tableRefunds, r.ID, r)
}

func (c *conn) Refund(ctx context.Context, id string) (clinic.Refund, error) {
	var r clinic.Refund
	return r, c.loadRecord(ctx, tableRefunds, id, &r)
}

// =============================================================================
// REPORTS & PAYMENTS
// =============================================================================

func (c *conn) CreateReport(ctx context.Context, report clinic.Report) error {
	openedBy, err := json.Marshal(report.OpenedBy)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx,
		"INSERT INTO reports (date, starting_cash, opened_by_json, opened_at) VALUES (?, ?, ?, ?)",
		formatDay(report.Date), report.StartingCash.String(), string(openedBy), formatTime(report.OpenedAt),
	)
	if isUniqueConstraintError(err) {
		return clinic.ErrShiftAlreadyOpen
	}
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	for _, p := range report.Payments {
		if err := c.AppendPayment(ctx, report.Date, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) Report(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	var (
		date         string
		startingCash string
		openedBy     string
		openedAt     string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT date, starting_cash, opened_by_json, opened_at FROM reports WHERE date = ?",
		formatDay(day),
	).Scan(&date, &startingCash, &openedBy, &openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	report := &clinic.Report{
		StartingCash: generic.MustParseDecimal(startingCash),
		OpenedAt:     parseTime(openedAt),
	}
	if report.Date, err = generic.ParseDay(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(openedBy), &report.OpenedBy); err != nil {
		return nil, err
	}
	if report.Payments, err = c.reportPayments(ctx, date); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *conn) reportPayments(ctx context.Context, date string) ([]clinic.Payment, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT data_json FROM payments WHERE report_date = ? ORDER BY rowid ASC", date)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []clinic.Payment{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p clinic.Payment
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to decode payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (c *conn) LatestReportBefore(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	var date string
	err := c.q.QueryRowContext(ctx,
		"SELECT date FROM reports WHERE date < ? ORDER BY date DESC LIMIT 1", formatDay(day),
	).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find previous report: %w", err)
	}
	previous, err := generic.ParseDay(date)
	if err != nil {
		return nil, err
	}
	return c.Report(ctx, previous)
}

func (c *conn) AppendPayment(ctx context.Context, day generic.TimePoint, p clinic.Payment) error {
	var exists int
	if err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reports WHERE date = ?", formatDay(day),
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", clinic.ErrShiftClosed, formatDay(day))
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payment: %w", err)
	}
	_, err = c.q.ExecContext(ctx,
		"INSERT INTO payments (id, report_date, data_json, created_at) VALUES (?, ?, ?, ?)",
		p.ID, formatDay(day), string(data), formatTime(time.Now()),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("payment %s: %w", p.ID, generic.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (c *conn) Payment(ctx context.Context, id clinic.PaymentID) (clinic.Payment, error) {
	var data string
	err := c.q.QueryRowContext(ctx, "SELECT data_json FROM payments WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return clinic.Payment{}, fmt.Errorf("payment %s: %w", id, clinic.ErrNotFound)
	}
	if err != nil {
		return clinic.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	var p clinic.Payment
	return p, json.Unmarshal([]byte(data), &p)
}

func (c *conn) ReportsInRange(ctx context.Context, period generic.Period) ([]clinic.Report, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT date FROM reports WHERE date >= ? AND date < ? ORDER BY date ASC",
		formatDay(period.Start), formatDay(period.End),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, err
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reports := make([]clinic.Report, 0, len(dates))
	for _, d := range dates {
		day, err := generic.ParseDay(d)
		if err != nil {
			return nil, err
		}
		r, err := c.Report(ctx, day)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset removes every row. Used by the demo scenario loader only.
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, func(c *conn) error {
		for _, table := range []string{
			"payments", "reports", "transactions", "accounts",
			tablePatients, tableDoctors, tablePricelist, tableServices,
			tableAppointments, tableChecks, tableRefunds,
		} {
			if _, err := c.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Helper functions

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatDay(tp generic.TimePoint) string { return tp.Time.Format(dayLayout) }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// =============================================================================
// LOCKED ACCESSORS - Store implements clinic.TxStore
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a generic.Account) error {
	return s.write(ctx, func(c *conn) error { return c.CreateAccount(ctx, a) })
}

func (s *Store) Account(ctx context.Context, id generic.AccountID) (generic.Account, error) {
	return read(s, func(c *conn) (generic.Account, error) { return c.Account(ctx, id) })
}

// Append applies the row and the balance update in one SQL transaction.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.write(ctx, func(c *conn) error { return c.Append(ctx, tx) })
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return s.write(ctx, func(c *conn) error { return c.AppendBatch(ctx, txs) })
}

func (s *Store) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	return read(s, func(c *conn) ([]generic.Transaction, error) { return c.Load(ctx, id) })
}

func (s *Store) LoadRange(ctx context.Context, id generic.AccountID, from, to time.Time) ([]generic.Transaction, error) {
	return read(s, func(c *conn) ([]generic.Transaction, error) { return c.LoadRange(ctx, id, from, to) })
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return read(s, func(c *conn) (bool, error) { return c.Exists(ctx, key) })
}

func (s *Store) SavePatient(ctx context.Context, p clinic.Patient) error {
	return s.write(ctx, func(c *conn) error { return c.SavePatient(ctx, p) })
}

func (s *Store) Patient(ctx context.Context, id generic.AccountID) (clinic.Patient, error) {
	return read(s, func(c *conn) (clinic.Patient, error) { return c.Patient(ctx, id) })
}

func (s *Store) ListPatients(ctx context.Context) ([]clinic.Patient, error) {
	return read(s, func(c *conn) ([]clinic.Patient, error) { return c.ListPatients(ctx) })
}

func (s *Store) SaveDoctor(ctx context.Context, d clinic.Doctor) error {
	return s.write(ctx, func(c *conn) error { return c.SaveDoctor(ctx, d) })
}

func (s *Store) Doctor(ctx context.Context, id generic.AccountID) (clinic.Doctor, error) {
	return read(s, func(c *conn) (clinic.Doctor, error) { return c.Doctor(ctx, id) })
}

func (s *Store) ListDoctors(ctx context.Context) ([]clinic.Doctor, error) {
	return read(s, func(c *conn) ([]clinic.Doctor, error) { return c.ListDoctors(ctx) })
}

func (s *Store) SavePricelistItem(ctx context.Context, item clinic.PricelistItem) error {
	return s.write(ctx, func(c *conn) error { return c.SavePricelistItem(ctx, item) })
}

func (s *Store) PricelistItem(ctx context.Context, id string) (clinic.PricelistItem, error) {
	return read(s, func(c *conn) (clinic.PricelistItem, error) { return c.PricelistItem(ctx, id) })
}

func (s *Store) ListPricelist(ctx context.Context) ([]clinic.PricelistItem, error) {
	return read(s, func(c *conn) ([]clinic.PricelistItem, error) { return c.ListPricelist(ctx) })
}

func (s *Store) SaveService(ctx context.Context, svc clinic.MedicalService) error {
	return s.write(ctx, func(c *conn) error { return c.SaveService(ctx, svc) })
}

func (s *Store) Service(ctx context.Context, id clinic.ServiceID) (clinic.MedicalService, error) {
	return read(s, func(c *conn) (clinic.MedicalService, error) { return c.Service(ctx, id) })
}

func (s *Store) SaveAppointment(ctx context.Context, a clinic.Appointment) error {
	return s.write(ctx, func(c *conn) error { return c.SaveAppointment(ctx, a) })
}

func (s *Store) Appointment(ctx context.Context, id string) (clinic.Appointment, error) {
	return read(s, func(c *conn) (clinic.Appointment, error) { return c.Appointment(ctx, id) })
}

func (s *Store) SaveCheck(ctx context.Context, ch clinic.Check) error {
	return s.write(ctx, func(c *conn) error { return c.SaveCheck(ctx, ch) })
}

func (s *Store) Check(ctx context.Context, id string) (clinic.Check, error) {
	return read(s, func(c *conn) (clinic.Check, error) { return c.Check(ctx, id) })
}

func (s *Store) SaveRefund(ctx context.Context, r clinic.Refund) error {
	return s.write(ctx, func(c *conn) error { return c.SaveRefund(ctx, r) })
}

func (s *Store) Refund(ctx context.Context, id string) (clinic.Refund, error) {
	return read(s, func(c *conn) (clinic.Refund, error) { return c.Refund(ctx, id) })
}

func (s *Store) CreateReport(ctx context.Context, r clinic.Report) error {
	return s.write(ctx, func(c *conn) error { return c.CreateReport(ctx, r) })
}

func (s *Store) Report(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	return read(s, func(c *conn) (*clinic.Report, error) { return c.Report(ctx, day) })
}

func (s *Store) LatestReportBefore(ctx context.Context, day generic.TimePoint) (*clinic.Report, error) {
	return read(s, func(c *conn) (*clinic.Report, error) { return c.LatestReportBefore(ctx, day) })
}

func (s *Store) AppendPayment(ctx context.Context, day generic.TimePoint, p clinic.Payment) error {
	return s.write(ctx, func(c *conn) error { return c.AppendPayment(ctx, day, p) })
}

func (s *Store) Payment(ctx context.Context, id clinic.PaymentID) (clinic.Payment, error) {
	return read(s, func(c *conn) (clinic.Payment, error) { return c.Payment(ctx, id) })
}

func (s *Store) ReportsInRange(ctx context.Context, period generic.Period) ([]clinic.Report, error) {
	return read(s, func(c *conn) ([]clinic.Report, error) { return c.ReportsInRange(ctx, period) })
}

var (
	_ clinic.TxStore = (*Store)(nil)
	_ clinic.Store   = (*conn)(nil)
)
