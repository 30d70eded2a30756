package promotion

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/promion/pkg/events"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/otelhelper"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/snapshotstore"
)

// DevToStagingRequest initiates a live-export promotion. Record must be a
// fresh PENDING record (from jobs.Manager); WorkflowIDs are runtime ids in
// the source environment.
type DevToStagingRequest struct {
	Record      *models.PromotionRecord
	SourceEnv   *models.Environment
	TargetEnv   *models.Environment
	Source      runtime.Adapter
	Target      runtime.Adapter
	WorkflowIDs []string
}

// StagingToProdRequest initiates a pointer-copy promotion. The snapshot
// content comes from the source environment's current pointer, never from a
// live runtime.
type StagingToProdRequest struct {
	Record    *models.PromotionRecord
	SourceEnv *models.Environment
	TargetEnv *models.Environment
}

// ApproveRequest resumes a PENDING_APPROVAL record into the deploy phase.
type ApproveRequest struct {
	Record     *models.PromotionRecord
	TargetEnv  *models.Environment
	Target     runtime.Adapter
	ApprovedBy string
}

// InitiateDevToStaging exports the selected workflows from the source
// runtime, snapshots them under the target environment's folder, and either
// parks the record at PENDING_APPROVAL (production targets) or runs the
// deploy phase synchronously. The linked-mapping guardrail runs before any
// Git write.
func (o *Orchestrator) InitiateDevToStaging(ctx context.Context, req DevToStagingRequest) (*Outcome, error) {
	record := req.Record

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "promotion.initiate_dev_to_staging",
		attribute.String(otelhelper.PromotionIDKey, record.ID),
		attribute.String(otelhelper.TenantIDKey, record.TenantID),
		attribute.String(otelhelper.SourceEnvKey, req.SourceEnv.ID),
		attribute.String(otelhelper.TargetEnvKey, req.TargetEnv.ID),
	)
	defer span.End()

	outcome := &Outcome{Record: record}

	o.publish(ctx, record.TenantID, events.PromotionStarted{
		BaseEvent:   o.baseEvent(events.PromotionStartedEvent, record.TenantID),
		PromotionID: record.ID,
		SourceEnvID: req.SourceEnv.ID,
		TargetEnvID: req.TargetEnv.ID,
	})
	o.checkpoint(ctx, record, 1, 6, "exporting workflows")

	workflows, err := o.exportSelected(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	if o.validator != nil {
		issues, err := o.validator.ValidateAll(workflows)
		if err != nil {
			otelhelper.SetError(span, err)

			return outcome, o.fail(ctx, record, err, nil)
		}

		if len(issues) > 0 {
			cause := &ValidationError{Issues: issues}
			otelhelper.SetError(span, cause)

			return outcome, o.fail(ctx, record, cause, nil)
		}
	}

	err = o.advance(ctx, record, models.PromotionStatusCreatingSnapshot)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.checkpoint(ctx, record, 2, 6, "creating snapshot")

	preDeployID, err := o.store.GetCurrentSnapshotID(ctx, req.TargetEnv.GitFolder)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	snapshot, err := o.store.CreateSnapshot(ctx, snapshotstore.CreateSnapshotRequest{
		TargetEnv: req.TargetEnv.GitFolder,
		Workflows: workflows,
		Kind:      models.SnapshotKindPromotion,
		SourceEnv: req.SourceEnv.GitFolder,
		CreatedBy: record.CreatedBy,
		Reason:    record.Reason,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	outcome.Snapshot = snapshot
	record.SnapshotID = snapshot.SnapshotID
	record.CommitSHA = snapshot.CommitSHA
	record.WorkflowsCount = snapshot.Manifest.WorkflowsCount
	span.SetAttributes(attribute.String(otelhelper.SnapshotIDKey, snapshot.SnapshotID))

	o.recordHistory(ctx, persistence.RecordKindSnapshots, persistence.RecordRef{
		ID:            snapshot.SnapshotID,
		TenantID:      record.TenantID,
		EnvironmentID: req.TargetEnv.ID,
		CreatedAt:     o.now().UTC(),
	})
	o.publish(ctx, record.TenantID, events.PromotionSnapshotCreated{
		BaseEvent:      o.baseEvent(events.PromotionSnapshotCreatedEvent, record.TenantID),
		PromotionID:    record.ID,
		SnapshotID:     snapshot.SnapshotID,
		CommitSHA:      snapshot.CommitSHA,
		TargetEnvID:    req.TargetEnv.ID,
		WorkflowsCount: record.WorkflowsCount,
	})

	if o.onboarder != nil {
		err = o.onboarder.EnsureOnboarded(ctx, req.TargetEnv)
		if err != nil {
			otelhelper.SetError(span, err)

			return outcome, o.fail(ctx, record, fmt.Errorf("failed to onboard target environment: %w", err), nil)
		}
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

// InitiateStagingToProd copies the source environment's current snapshot
// into the target folder under a new id and always parks the record at
// PENDING_APPROVAL: production promotions require a human decision
// regardless of policy flags.
func (o *Orchestrator) InitiateStagingToProd(ctx context.Context, req StagingToProdRequest) (*Outcome, error) {
	record := req.Record

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "promotion.initiate_staging_to_prod",
		attribute.String(otelhelper.PromotionIDKey, record.ID),
		attribute.String(otelhelper.TenantIDKey, record.TenantID),
		attribute.String(otelhelper.SourceEnvKey, req.SourceEnv.ID),
		attribute.String(otelhelper.TargetEnvKey, req.TargetEnv.ID),
	)
	defer span.End()

	outcome := &Outcome{Record: record}

	o.publish(ctx, record.TenantID, events.PromotionStarted{
		BaseEvent:   o.baseEvent(events.PromotionStartedEvent, record.TenantID),
		PromotionID: record.ID,
		SourceEnvID: req.SourceEnv.ID,
		TargetEnvID: req.TargetEnv.ID,
	})

	sourceSnapshotID, err := o.store.GetCurrentSnapshotID(ctx, req.SourceEnv.GitFolder)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	if sourceSnapshotID == "" {
		cause := fmt.Errorf("%w: %s", ErrSourceUnonboarded, req.SourceEnv.ID)
		otelhelper.SetError(span, cause)

		return outcome, o.fail(ctx, record, cause, nil)
	}

	err = o.advance(ctx, record, models.PromotionStatusCreatingSnapshot)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.checkpoint(ctx, record, 1, 3, "copying snapshot")

	snapshot, err := o.store.CopySnapshotToEnv(ctx,
		req.SourceEnv.GitFolder, sourceSnapshotID, req.TargetEnv.GitFolder,
		models.SnapshotKindPromotion, record.CreatedBy, record.Reason)
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	outcome.Snapshot = snapshot
	record.SnapshotID = snapshot.SnapshotID
	record.CommitSHA = snapshot.CommitSHA
	record.SourceSnapshotID = sourceSnapshotID
	record.WorkflowsCount = snapshot.Manifest.WorkflowsCount
	span.SetAttributes(attribute.String(otelhelper.SnapshotIDKey, snapshot.SnapshotID))

	o.recordHistory(ctx, persistence.RecordKindSnapshots, persistence.RecordRef{
		ID:            snapshot.SnapshotID,
		TenantID:      record.TenantID,
		EnvironmentID: req.TargetEnv.ID,
		CreatedAt:     o.now().UTC(),
	})
	o.publish(ctx, record.TenantID, events.PromotionSnapshotCreated{
		BaseEvent:      o.baseEvent(events.PromotionSnapshotCreatedEvent, record.TenantID),
		PromotionID:    record.ID,
		SnapshotID:     snapshot.SnapshotID,
		CommitSHA:      snapshot.CommitSHA,
		TargetEnvID:    req.TargetEnv.ID,
		WorkflowsCount: record.WorkflowsCount,
	})

	err = o.parkPendingApproval(ctx, record, req.TargetEnv)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	outcome.RequiresApproval = true

	return outcome, nil
}

// ApproveAndExecute resumes an approved record: it reloads the committed
// snapshot content and runs the deploy phase against the target runtime.
func (o *Orchestrator) ApproveAndExecute(ctx context.Context, req ApproveRequest) (*Outcome, error) {
	record := req.Record

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "promotion.approve_and_execute",
		attribute.String(otelhelper.PromotionIDKey, record.ID),
		attribute.String(otelhelper.TenantIDKey, record.TenantID),
		attribute.String(otelhelper.TargetEnvKey, req.TargetEnv.ID),
	)
	defer span.End()

	outcome := &Outcome{Record: record}

	if record.Status != models.PromotionStatusPendingApproval {
		return outcome, fmt.Errorf("%w: status is %s", ErrNotPendingApproval, record.Status)
	}

	approved := o.now().UTC()
	record.ApprovedAt = &approved
	record.ApprovedBy = req.ApprovedBy

	err := o.advance(ctx, record, models.PromotionStatusApproved)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	_, workflows, err := o.store.GetSnapshotContent(ctx, req.TargetEnv.GitFolder, record.SnapshotID)
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	preDeployID, err := o.store.GetCurrentSnapshotID(ctx, req.TargetEnv.GitFolder)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	return o.executeDeployPhase(ctx, record, req.TargetEnv, req.Target, workflows, preDeployID, outcome)
}

// Reject terminates a PENDING_APPROVAL record without touching the target
// runtime. The committed snapshot stays in Git as an audit artifact.
func (o *Orchestrator) Reject(ctx context.Context, record *models.PromotionRecord, decidedBy, reason string) error {
	if record.Status != models.PromotionStatusPendingApproval {
		return fmt.Errorf("%w: status is %s", ErrNotPendingApproval, record.Status)
	}

	err := o.reject(ctx, record, decidedBy, reason)
	if err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}

	o.logger.InfoContext(ctx, "Promotion rejected",
		"promotion_id", record.ID, "decided_by", decidedBy)
	o.sink.Update(ctx, record.ID, jobs.JobStatusFailed, jobs.Progress{Message: "rejected"}, nil, nil)

	return nil
}

func (o *Orchestrator) parkPendingApproval(ctx context.Context, record *models.PromotionRecord, target *models.Environment) error {
	err := o.advance(ctx, record, models.PromotionStatusPendingApproval)
	if err != nil {
		return err
	}

	o.publish(ctx, record.TenantID, events.PromotionPendingApproval{
		BaseEvent:   o.baseEvent(events.PromotionPendingApprovalEvent, record.TenantID),
		PromotionID: record.ID,
		TargetEnvID: target.ID,
		SnapshotID:  record.SnapshotID,
	})
	o.checkpoint(ctx, record, 2, 3, "awaiting approval")

	return nil
}

// exportSelected fetches each selected workflow from the source runtime,
// keyed by canonical id. It rejects the whole selection when any workflow's
// mapping is not linked, before a single Git write.
func (o *Orchestrator) exportSelected(ctx context.Context, req DevToStagingRequest) (map[string]map[string]any, error) {
	notLinked := make([]string, 0)
	workflows := make(map[string]map[string]any, len(req.WorkflowIDs))

	for _, runtimeID := range req.WorkflowIDs {
		mapping, err := o.mappings.GetByRuntimeID(ctx, req.SourceEnv.ID, runtimeID)
		if err != nil {
			if persistence.IsMappingNotFound(err) {
				notLinked = append(notLinked, runtimeID)

				continue
			}

			return nil, fmt.Errorf("failed to load mapping for %s: %w", runtimeID, err)
		}

		if !mapping.Promotable() {
			notLinked = append(notLinked, runtimeID)

			continue
		}

		def, err := req.Source.GetWorkflow(ctx, runtimeID)
		if err != nil {
			return nil, fmt.Errorf("failed to export workflow %s: %w", runtimeID, err)
		}

		workflows[mapping.CanonicalID] = def
	}

	if len(notLinked) > 0 {
		return nil, &GuardrailError{RuntimeIDs: notLinked}
	}

	return workflows, nil
}
