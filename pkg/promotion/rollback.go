package promotion

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/promion/pkg/events"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/otelhelper"
	"github.com/dukex/promion/pkg/runtime"
)

// RollbackRequest re-deploys an existing snapshot already owned by the
// target environment. No new Git write happens before the deploy phase.
type RollbackRequest struct {
	Record     *models.PromotionRecord
	TargetEnv  *models.Environment
	Target     runtime.Adapter
	SnapshotID string
}

// InitiateRollback validates the requested snapshot and either parks the
// record at PENDING_APPROVAL (production targets) or re-deploys immediately.
// Rollback is the deploy phase applied to older content.
func (o *Orchestrator) InitiateRollback(ctx context.Context, req RollbackRequest) (*Outcome, error) {
	record := req.Record

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "promotion.initiate_rollback",
		attribute.String(otelhelper.PromotionIDKey, record.ID),
		attribute.String(otelhelper.TenantIDKey, record.TenantID),
		attribute.String(otelhelper.TargetEnvKey, req.TargetEnv.ID),
		attribute.String(otelhelper.SnapshotIDKey, req.SnapshotID),
	)
	defer span.End()

	outcome := &Outcome{Record: record}

	if !record.Rollback {
		return outcome, fmt.Errorf("%w: %s", ErrNotRollback, record.ID)
	}

	o.publish(ctx, record.TenantID, events.PromotionStarted{
		BaseEvent:   o.baseEvent(events.PromotionStartedEvent, record.TenantID),
		PromotionID: record.ID,
		SourceEnvID: record.SourceEnvID,
		TargetEnvID: req.TargetEnv.ID,
		Rollback:    true,
	})

	manifest, workflows, err := o.store.GetSnapshotContent(ctx, req.TargetEnv.GitFolder, req.SnapshotID)
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	preDeployID, err := o.store.GetCurrentSnapshotID(ctx, req.TargetEnv.GitFolder)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	record.SnapshotID = req.SnapshotID
	record.WorkflowsCount = manifest.WorkflowsCount

	// The state machine reaches the deploy phase only through
	// CREATING_SNAPSHOT; for a rollback the snapshot already exists, so the
	// step is a pure status move.
	err = o.advance(ctx, record, models.PromotionStatusCreatingSnapshot)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	if req.TargetEnv.RequiresApproval() {
		err = o.parkPendingApproval(ctx, record, req.TargetEnv)
		if err != nil {
			return outcome, o.fail(ctx, record, err, nil)
		}

		outcome.RequiresApproval = true

		return outcome, nil
	}

	return o.executeDeployPhase(ctx, record, req.TargetEnv, req.Target, workflows, preDeployID, outcome)
}

// ApproveAndExecuteRollback resumes an approved rollback. It shares the
// approval path with forward promotions.
func (o *Orchestrator) ApproveAndExecuteRollback(ctx context.Context, req ApproveRequest) (*Outcome, error) {
	if !req.Record.Rollback {
		return &Outcome{Record: req.Record}, fmt.Errorf("%w: %s", ErrNotRollback, req.Record.ID)
	}

	return o.ApproveAndExecute(ctx, req)
}
