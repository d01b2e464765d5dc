/*
scheduler.go - Periodic debt reconciliation

PURPOSE:
  Customer debts are updated incrementally on every sale, repayment and
  cancellation. Each step clamps at zero, so an overpayment followed by a
  new sale leaves the cached figure above what a replay of history gives.
  The scheduler periodically rebuilds every debt from history and flushes
  the ledger when anything moved.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on Start
  - Keeps the most recent runs in memory for the UI

USAGE:
  scheduler := NewReconciliationScheduler(svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: POST /api/reconciliation/run (manual trigger)
  - ledger/reconcile.go: RecalculateAllDebts
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/trade-ledger/gateway"
)

const maxRuns = 50

// ReconciliationScheduler rebuilds cached debts on a timer.
type ReconciliationScheduler struct {
	Service  *gateway.Service
	Interval time.Duration
	Enabled  bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []ReconciliationRunDTO
}

func NewReconciliationScheduler(svc *gateway.Service, log zerolog.Logger) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
		log:      log,
	}
}

// Start begins the scheduler. Calling Start on a disabled or already
// running scheduler does nothing.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("debt reconciliation disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker.C, rs.stop)

	rs.log.Info().Dur("interval", rs.Interval).Msg("debt reconciliation started")
}

// Stop stops the scheduler and waits for a pass in progress.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.log.Info().Msg("debt reconciliation stopped")
}

func (rs *ReconciliationScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunOnce(context.Background(), "schedule")

	for {
		select {
		case <-tick:
			rs.RunOnce(context.Background(), "schedule")
		case <-stop:
			return
		}
	}
}

// RunOnce performs one reconciliation pass and records it.
func (rs *ReconciliationScheduler) RunOnce(ctx context.Context, trigger string) ReconciliationRunDTO {
	run := ReconciliationRunDTO{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	drift, err := rs.Service.ReconcileDebts(ctx)
	run.CompletedAt = time.Now().UTC()
	run.Drift = drift
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		rs.log.Error().Err(err).Str("run", run.ID).Msg("debt reconciliation failed")
	} else {
		run.Status = "completed"
		if len(drift) > 0 {
			rs.log.Info().Str("run", run.ID).Int("customers", len(drift)).Msg("debts healed")
		}
	}

	rs.runsMu.Lock()
	rs.runs = append([]ReconciliationRunDTO{run}, rs.runs...)
	if len(rs.runs) > maxRuns {
		rs.runs = rs.runs[:maxRuns]
	}
	rs.runsMu.Unlock()
	return run
}

// Runs returns recorded passes, newest first.
func (rs *ReconciliationScheduler) Runs() []ReconciliationRunDTO {
	rs.runsMu.Lock()
	defer rs.runsMu.Unlock()
	return append([]ReconciliationRunDTO{}, rs.runs...)
}
