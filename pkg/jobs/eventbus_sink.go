package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/events"
)

// EventBusSink publishes job progress checkpoints as job.progress events.
type EventBusSink struct {
	bus      eventbus.EventBus
	logger   *slog.Logger
	tenantID string
}

// NewEventBusSink creates a progress sink publishing on the event bus.
func NewEventBusSink(logger *slog.Logger, bus eventbus.EventBus, tenantID string) *EventBusSink {
	return &EventBusSink{
		bus:      bus,
		logger:   logger.With("module", "jobs"),
		tenantID: tenantID,
	}
}

func (s *EventBusSink) Update(ctx context.Context, jobID string, status JobStatus, progress Progress, result map[string]any, jobErr error) {
	event := events.JobProgress{
		BaseEvent: events.BaseEvent{
			ID:        s.bus.GenerateID(),
			Type:      events.JobProgressEvent,
			Timestamp: time.Now().UTC(),
			TenantID:  s.tenantID,
		},
		JobID:   jobID,
		Status:  string(status),
		Current: progress.Current,
		Total:   progress.Total,
		Message: progress.Message,
		Result:  result,
	}

	if jobErr != nil {
		event.Error = jobErr.Error()
	}

	err := s.bus.Publish(ctx, s.tenantID, event)
	if err != nil {
		// A progress reporting failure must never fail the job.
		s.logger.WarnContext(ctx, "Failed to publish job progress",
			"job_id", jobID, "status", status, "error", err)
	}
}
