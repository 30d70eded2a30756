package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/events"
)

// Sweeper runs retention sweeps on a cron schedule.
type Sweeper struct {
	engine    *Engine
	logger    *slog.Logger
	cronExpr  string
	dryRun    bool
	publisher eventbus.EventPublisher

	cron   *cron.Cron
	mutex  sync.Mutex
	last   *SweepResult
	cancel context.CancelFunc
}

// NewSweeper creates a scheduled sweeper. The cron expression uses the
// standard five-field format.
func NewSweeper(logger *slog.Logger, engine *Engine, cronExpr string, dryRun bool) *Sweeper {
	return &Sweeper{
		engine:   engine,
		logger:   logger.With("module", "retention"),
		cronExpr: cronExpr,
		dryRun:   dryRun,
	}
}

// WithPublisher makes the sweeper announce completed sweeps on the event
// bus.
func (s *Sweeper) WithPublisher(publisher eventbus.EventPublisher) *Sweeper {
	s.publisher = publisher

	return s
}

// Start schedules the sweep and begins the cron loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting retention sweeper", "cron", s.cronExpr, "dry_run", s.dryRun)

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

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	s.logger.InfoContext(ctx, "Stopping retention sweeper")

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

// LastResult returns the most recent sweep result, or nil before the first
// run.
func (s *Sweeper) LastResult() *SweepResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.last
}

func (s *Sweeper) runOnce(ctx context.Context) {
	result, err := s.engine.SweepAll(ctx, s.dryRun)
	if err != nil {
		s.logger.ErrorContext(ctx, "Retention sweep failed", "error", err)

		return
	}

	s.mutex.Lock()
	s.last = result
	s.mutex.Unlock()

	if s.publisher != nil {
		err = s.publisher.Publish(ctx, "retention", events.RetentionSweepCompleted{
			BaseEvent: events.BaseEvent{
				ID:        uuid.NewString(),
				Type:      events.RetentionSweepCompletedEvent,
				Timestamp: time.Now().UTC(),
			},
			Deleted: result.Deleted,
			DryRun:  result.DryRun,
			Errors:  result.Errors,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to publish sweep event", "error", err)
		}
	}
}
