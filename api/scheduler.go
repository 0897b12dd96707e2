/*
scheduler.go - In-process monthly accrual scheduler

PURPOSE:
  Periodically runs the accrual cycle for the current month. Accrual is
  idempotent per (employee, leave type, month), so ticking more often than
  monthly only credits once; later ticks in the same month are skipped.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Works alongside the external trigger (POST /api/cron/accrual); both
    paths share the same idempotency guard in the store

CONFIGURATION:
  - CheckInterval: How often to run (ACCRUAL_INTERVAL, default 24h)
  - Enabled: Whether the scheduler is active (ACCRUAL_SCHEDULER_ENABLED)

USAGE:
  scheduler := NewAccrualScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/accrual.go: AccrualEngine
  - handlers.go: RunAccrual endpoint (manual / cron trigger)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-ledger/leave"
)

// AccrualScheduler runs monthly accrual on a ticker.
type AccrualScheduler struct {
	Engine        *leave.AccrualEngine
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	// RunTimeout bounds a single cycle.
	RunTimeout time.Duration

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastMu     sync.Mutex
	lastResult *leave.AccrualResult
	lastRunAt  time.Time
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(engine *leave.AccrualEngine, logger *slog.Logger) *AccrualScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualScheduler{
		Engine:        engine,
		Logger:        logger.With(slog.String("component", "accrual-scheduler")),
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		RunTimeout:    10 * time.Minute,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Logger.Info("scheduler disabled, not starting")
		return
	}
	if as.running {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.running = true
	as.wg.Add(1)

	go as.run(as.ticker, as.stop)

	as.Logger.Info("scheduler started", slog.Duration("interval", as.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.running {
		return
	}
	as.ticker.Stop()
	close(as.stop)
	as.wg.Wait()
	as.running = false
	as.Logger.Info("scheduler stopped")
}

func (as *AccrualScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.runOnce(stop)

	for {
		select {
		case <-ticker.C:
			as.runOnce(stop)
		case <-stop:
			return
		}
	}
}

func (as *AccrualScheduler) runOnce(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), as.RunTimeout)
	defer cancel()

	// Cancel the cycle if Stop is called mid-run.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			cancel()
		case <-done:
		}
	}()

	as.RunNow(ctx)
}

// RunNow runs one cycle synchronously and records the result.
func (as *AccrualScheduler) RunNow(ctx context.Context) (leave.AccrualResult, error) {
	result, err := as.Engine.RunCurrent(ctx)

	as.lastMu.Lock()
	as.lastRunAt = time.Now()
	if err == nil {
		as.lastResult = &result
	}
	as.lastMu.Unlock()

	if err != nil {
		as.Logger.Error("accrual run failed", slog.Any("error", err))
		return result, err
	}
	as.Logger.Debug("accrual run completed",
		slog.String("period", result.Period),
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}

// LastRun returns the most recent successful result and when a run last
// happened. The result is nil before the first success.
func (as *AccrualScheduler) LastRun() (*leave.AccrualResult, time.Time) {
	as.lastMu.Lock()
	defer as.lastMu.Unlock()
	return as.lastResult, as.lastRunAt
}

// GetNextRunTime returns when the next scheduled check will occur.
func (as *AccrualScheduler) GetNextRunTime() time.Time {
	_, last := as.LastRun()
	if last.IsZero() {
		return time.Now().Add(as.CheckInterval)
	}
	return last.Add(as.CheckInterval)
}
