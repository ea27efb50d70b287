/*
scheduler.go - Automated shift opening and conservation audit

PURPOSE:
  Keeps the register usable without a manual "open shift" each morning and
  periodically audits that every materialized balance still equals the sum
  of its history.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Opens today's shift as the system user when none exists yet
  - Verifies every patient, doctor and the checking account
  - Drift is logged, never repaired: the history is the source of truth and
    fixing it is a human decision

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewShiftScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: OpenShift endpoint (manual opening)
  - clinic/report.go: Shifts
  - generic/ledger.go: Verify
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frontdesk/ledger/clinic"
	"github.com/frontdesk/ledger/generic"
	"github.com/rs/zerolog"
)

// ShiftScheduler opens shifts and audits balances on a timer.
type ShiftScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// AuditResult summarizes one run.
type AuditResult struct {
	Day         generic.TimePoint
	ShiftOpened bool
	Verified    int
	Drifted     []generic.AccountID
}

// NewShiftScheduler creates a new scheduler.
func NewShiftScheduler(handler *Handler) *ShiftScheduler {
	return &ShiftScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           handler.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (ss *ShiftScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.log.Info().Msg("disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run()

	ss.log.Info().Dur("interval", ss.CheckInterval).Msg("started")
}

// Stop stops the scheduler.
func (ss *ShiftScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.log.Info().Msg("stopped")
	}
}

func (ss *ShiftScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.RunNow(context.Background())

	for {
		select {
		case <-ss.ticker.C:
			ss.RunNow(context.Background())
		case <-ss.stop:
			return
		}
	}
}

// RunNow performs one check synchronously (for testing/admin).
func (ss *ShiftScheduler) RunNow(ctx context.Context) AuditResult {
	h := ss.Handler
	result := AuditResult{Day: generic.Today(h.Clock)}

	opened, err := ss.ensureShift(ctx)
	if err != nil {
		ss.log.Error().Err(err).Str("day", result.Day.String()).Msg("open shift")
	}
	result.ShiftOpened = opened

	accounts, err := ss.accounts(ctx)
	if err != nil {
		ss.log.Error().Err(err).Msg("list accounts")
		return result
	}

	ledger := generic.NewLedger(h.Store)
	for _, id := range accounts {
		err := ledger.Verify(ctx, id)
		var drift *generic.ConservationError
		switch {
		case err == nil:
			result.Verified++
		case errors.As(err, &drift):
			result.Drifted = append(result.Drifted, id)
			ss.log.Warn().
				Str("account", string(id)).
				Str("stored", drift.Stored.String()).
				Str("replayed", drift.Replayed.String()).
				Msg("balance drift")
		case generic.IsNotFound(err):
			// checking account not opened yet
		default:
			ss.log.Error().Err(err).Str("account", string(id)).Msg("verify")
		}
	}

	if result.ShiftOpened || len(result.Drifted) > 0 {
		ss.log.Info().
			Bool("shift_opened", result.ShiftOpened).
			Int("verified", result.Verified).
			Int("drifted", len(result.Drifted)).
			Msg("check completed")
	}
	return result
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ss *ShiftScheduler) GetNextRunTime() time.Time {
	return ss.Handler.Clock.Now().Add(ss.CheckInterval)
}

func (ss *ShiftScheduler) ensureShift(ctx context.Context) (bool, error) {
	_, err := ss.Handler.Shifts.Open(ctx, clinic.SystemUser)
	if errors.Is(err, clinic.ErrShiftAlreadyOpen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (ss *ShiftScheduler) accounts(ctx context.Context) ([]generic.AccountID, error) {
	store := ss.Handler.Store
	patients, err := store.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	doctors, err := store.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]generic.AccountID, 0, len(patients)+len(doctors)+1)
	for _, p := range patients {
		ids = append(ids, p.ID)
	}
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	return append(ids, ss.Handler.CheckingAccountID), nil
}
