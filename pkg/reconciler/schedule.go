package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs reconciliation passes on a cron schedule.
type Scheduler struct {
	engine   *Engine
	source   TargetSource
	logger   *slog.Logger
	cronExpr string

	cron   *cron.Cron
	mutex  sync.Mutex
	last   *Report
	cancel context.CancelFunc
}

// NewScheduler creates a scheduled reconciler. The cron expression uses the
// standard five-field format.
func NewScheduler(logger *slog.Logger, engine *Engine, source TargetSource, cronExpr string) *Scheduler {
	return &Scheduler{
		engine:   engine,
		source:   source,
		logger:   logger.With("module", "reconciler"),
		cronExpr: cronExpr,
	}
}

// Start schedules reconciliation and begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting drift reconciler", "cron", s.cronExpr)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		s.runOnce(runCtx)
	})
	if err != nil {
		cancel()

		return fmt.Errorf("invalid cron expression %q: %w", s.cronExpr, err)
	}

	s.cron.Start()

	return nil
}

// Stop halts the cron loop and waits for a running pass to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.InfoContext(ctx, "Stopping drift reconciler")

	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
}

// LastReport returns the most recent pass report, or nil before the first
// run.
func (s *Scheduler) LastReport() *Report {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.last
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.engine.ReconcileAll(ctx, s.source)
	if err != nil {
		s.logger.ErrorContext(ctx, "Reconciliation pass failed", "error", err)

		return
	}

	s.mutex.Lock()
	s.last = report
	s.mutex.Unlock()

	s.logger.InfoContext(ctx, "Reconciliation pass finished",
		"environments", len(report.Environments), "errors", len(report.Errors))
}
