package service

import (
	"context"
	"sync"
	"time"

	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/rs/zerolog"
)

// Sweeper is a background worker that periodically executes due
// scheduled payments.
type Sweeper struct {
	scheduleService *ScheduleService
	logger          zerolog.Logger
	interval        time.Duration
	limit           int
	stopCh          chan struct{}
	doneCh          chan struct{}
	mu              sync.Mutex
	running         bool
}

// SweeperConfig holds configuration for the sweeper
type SweeperConfig struct {
	Interval time.Duration // How often to sweep for due payments
	Limit    int           // Maximum payments claimed per sweep
}

// DefaultSweeperConfig returns sensible defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 1 * time.Minute,
		Limit:    100,
	}
}

// NewSweeper creates a new sweeper
func NewSweeper(scheduleService *ScheduleService, logger zerolog.Logger, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Minute
	}
	if config.Limit <= 0 {
		config.Limit = 100
	}

	return &Sweeper{
		scheduleService: scheduleService,
		logger:          logger.With().Str("component", "sweeper").Logger(),
		interval:        config.Interval,
		limit:           config.Limit,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Int("limit", w.limit).
		Msg("Starting scheduled payment sweeper")

	go w.run(ctx)
}

// Stop gracefully stops the sweeper, waiting for an in-flight sweep to
// finish
func (w *Sweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping sweeper")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Sweeper stopped")
}

// run is the main loop for the sweeper
func (w *Sweeper) run(ctx context.Context) {
	defer close(w.doneCh)

	// Sweep immediately on startup to pick up payments that came due
	// while the service was down
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	startTime := time.Now()
	summary := w.scheduleService.ExecuteAllDue(ctx, w.limit)

	if summary.Executed == 0 && summary.Skipped == 0 && len(summary.Errors) == 0 {
		return
	}

	w.logger.Info().
		Int("executed", summary.Executed).
		Int("succeeded", summary.Succeeded).
		Int("partial", summary.Partial).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Completed due payment sweep")
}

// SweepNow manually triggers one sweep and returns its summary
func (w *Sweeper) SweepNow(ctx context.Context) *domain.CronExecutionSummary {
	w.logger.Debug().Msg("Manual sweep triggered")
	return w.scheduleService.ExecuteAllDue(ctx, w.limit)
}

// IsRunning returns whether the sweeper is currently running
func (w *Sweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
