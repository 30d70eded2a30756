// Package promotion drives the promotion and rollback state machine across
// environments: snapshot capture, approval gating, deployment, verification,
// and the final pointer update.
package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dukex/promion/pkg/definition"
	"github.com/dukex/promion/pkg/deployer"
	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/events"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/snapshotstore"
	"github.com/dukex/promion/pkg/verification"
)

// Onboarder prepares a target environment before its first deployment.
// Implementations are external collaborators; a nil Onboarder skips the step.
type Onboarder interface {
	EnsureOnboarded(ctx context.Context, env *models.Environment) error
}

// Dependencies holds the collaborators an Orchestrator composes.
type Dependencies struct {
	Store      *snapshotstore.Store
	Deployer   *deployer.Deployer
	Verifier   *verification.Engine
	Validator  *definition.Validator
	Promotions persistence.PromotionRepository
	Mappings   persistence.MappingRepository
	History    persistence.RetentionRepository
	Publisher  eventbus.EventPublisher
	Sink       jobs.ProgressSink
	Onboarder  Onboarder
	Tracer     trace.Tracer
}

// Options tunes orchestration behavior.
type Options struct {
	// StrictVerification fails the promotion on a post-deploy verification
	// mismatch instead of logging it and continuing to the pointer update.
	StrictVerification bool
}

// Outcome reports one orchestration operation. Record is always set; the
// remaining fields are filled as far as the operation progressed.
type Outcome struct {
	Record           *models.PromotionRecord
	RequiresApproval bool
	Snapshot         *snapshotstore.CreateSnapshotResult
	Deploy           *deployer.Result
	Verification     *verification.Result
	Rollback         *models.RollbackResult
	PointerCommit    string
}

// Orchestrator executes promotions and rollbacks as a persisted state
// machine. It never mutates a target environment before the corresponding
// snapshot is committed.
type Orchestrator struct {
	store      *snapshotstore.Store
	deployer   *deployer.Deployer
	verifier   *verification.Engine
	validator  *definition.Validator
	promotions persistence.PromotionRepository
	mappings   persistence.MappingRepository
	history    persistence.RetentionRepository
	publisher  eventbus.EventPublisher
	sink       jobs.ProgressSink
	onboarder  Onboarder
	tracer     trace.Tracer
	logger     *slog.Logger
	options    Options
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. Sink and Tracer fall back to
// no-op implementations; Validator, History, Publisher, and Onboarder may be
// nil to disable the corresponding step.
func NewOrchestrator(logger *slog.Logger, deps Dependencies, options Options) *Orchestrator {
	sink := deps.Sink
	if sink == nil {
		sink = jobs.NoopSink{}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("promotion")
	}

	return &Orchestrator{
		store:      deps.Store,
		deployer:   deps.Deployer,
		verifier:   deps.Verifier,
		validator:  deps.Validator,
		promotions: deps.Promotions,
		mappings:   deps.Mappings,
		history:    deps.History,
		publisher:  deps.Publisher,
		sink:       sink,
		onboarder:  deps.Onboarder,
		tracer:     tracer,
		logger:     logger.With("module", "promotion"),
		options:    options,
		now:        time.Now,
	}
}

// advance moves the record to the next lifecycle status and persists it.
func (o *Orchestrator) advance(ctx context.Context, record *models.PromotionRecord, next models.PromotionStatus) error {
	if !record.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, record.Status, next)
	}

	record.Status = next

	err := o.promotions.Save(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to persist status %s: %w", next, err)
	}

	return nil
}

// fail marks the record FAILED with the cause and reports it through the
// event bus and the progress sink. The cause is returned so call sites can
// surface it directly.
func (o *Orchestrator) fail(ctx context.Context, record *models.PromotionRecord, cause error, rollback *models.RollbackResult) error {
	record.Status = models.PromotionStatusFailed
	record.ErrorMessage = cause.Error()
	finished := o.now().UTC()
	record.FinishedAt = &finished

	err := o.promotions.Save(ctx, record)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist failed promotion",
			"promotion_id", record.ID, "error", err)
	}

	o.publish(ctx, record.TenantID, events.PromotionFailed{
		BaseEvent:   o.baseEvent(events.PromotionFailedEvent, record.TenantID),
		PromotionID: record.ID,
		TargetEnvID: record.TargetEnvID,
		Error:       cause.Error(),
		Rollback:    rollback,
	})
	o.sink.Update(ctx, record.ID, jobs.JobStatusFailed, jobs.Progress{Message: cause.Error()}, nil, cause)

	return cause
}

// reject marks a PENDING_APPROVAL record REJECTED.
func (o *Orchestrator) reject(ctx context.Context, record *models.PromotionRecord, decidedBy, reason string) error {
	record.Status = models.PromotionStatusRejected
	record.ErrorMessage = fmt.Sprintf("rejected by %s: %s", decidedBy, reason)
	finished := o.now().UTC()
	record.FinishedAt = &finished

	return o.promotions.Save(ctx, record)
}

func (o *Orchestrator) baseEvent(eventType events.EventType, tenantID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: o.now().UTC(),
		TenantID:  tenantID,
	}
}

// publish sends an event best effort. Publishing never fails the promotion.
func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(ctx, key, event)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish promotion event",
			"event_type", event.GetType(), "error", err)
	}
}

// checkpoint reports phase progress to the sink.
func (o *Orchestrator) checkpoint(ctx context.Context, record *models.PromotionRecord, current, total int, message string) {
	o.sink.Update(ctx, record.ID, jobs.JobStatusRunning, jobs.Progress{
		Current: current,
		Total:   total,
		Message: message,
	}, nil, nil)
}

// recordHistory logs a historical record for retention sweeps, best effort.
func (o *Orchestrator) recordHistory(ctx context.Context, kind persistence.RecordKind, ref persistence.RecordRef) {
	if o.history == nil {
		return
	}

	err := o.history.Insert(ctx, kind, ref)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to record retention history",
			"kind", kind, "record_id", ref.ID, "error", err)
	}
}
