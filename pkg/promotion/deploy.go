package promotion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/promion/pkg/deployer"
	"github.com/dukex/promion/pkg/events"
	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/otelhelper"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/runtime"
)

// executeDeployPhase runs DEPLOYING through COMPLETED for a record whose
// snapshot is already committed. The environment pointer moves only after
// deploy and verification, and never moves when every item failed.
func (o *Orchestrator) executeDeployPhase(
	ctx context.Context,
	record *models.PromotionRecord,
	target *models.Environment,
	adapter runtime.Adapter,
	workflows map[string]map[string]any,
	preDeployID string,
	outcome *Outcome,
) (*Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "promotion.deploy_phase",
		attribute.String(otelhelper.PromotionIDKey, record.ID),
		attribute.String(otelhelper.SnapshotIDKey, record.SnapshotID),
		attribute.String(otelhelper.TargetEnvKey, target.ID),
	)
	defer span.End()

	started := o.now().UTC()
	record.StartedAt = &started

	err := o.advance(ctx, record, models.PromotionStatusDeploying)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.checkpoint(ctx, record, 3, 6, "deploying to target runtime")
	o.precheckCredentials(ctx, adapter, target)

	items, err := o.buildItems(ctx, target, workflows)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	result := o.deployer.Deploy(ctx, adapter, items)
	outcome.Deploy = result

	if result.AllFailed() {
		cause := fmt.Errorf("deployment failed for all %d workflow(s): %s",
			result.Failed, strings.Join(itemErrors(result), "; "))
		otelhelper.SetError(span, cause)

		return outcome, o.fail(ctx, record, cause, nil)
	}

	if result.PartialFailure() {
		rollback := o.compensate(ctx, adapter, result, preDeployID)
		outcome.Rollback = rollback

		cause := fmt.Errorf("deployment partially failed (%d of %d), compensating rollback triggered",
			result.Failed, len(result.Items))
		otelhelper.SetError(span, cause)

		return outcome, o.fail(ctx, record, cause, rollback)
	}

	o.refreshMappings(ctx, target, workflows, result)

	err = o.advance(ctx, record, models.PromotionStatusVerifying)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.checkpoint(ctx, record, 4, 6, "verifying deployment")

	verifyResult, err := o.verifier.VerifyDeployment(ctx, adapter, workflows, runtimeIDs(result))
	if err != nil {
		o.logger.WarnContext(ctx, "Verification errored, continuing to pointer update",
			"promotion_id", record.ID, "error", err)
	}

	outcome.Verification = verifyResult

	if verifyResult != nil && !verifyResult.Matches && o.options.StrictVerification {
		cause := fmt.Errorf("verification found %d mismatch(es)", len(verifyResult.Mismatches))
		otelhelper.SetError(span, cause)

		return outcome, o.fail(ctx, record, cause, nil)
	}

	err = o.advance(ctx, record, models.PromotionStatusUpdatingPointer)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.checkpoint(ctx, record, 5, 6, "updating environment pointer")

	pointerCommit, err := o.store.UpdateEnvPointer(ctx, target.GitFolder, record.SnapshotID, record.CommitSHA, record.CreatedBy)
	if err != nil {
		otelhelper.SetError(span, err)

		return outcome, o.fail(ctx, record, err, nil)
	}

	outcome.PointerCommit = pointerCommit
	finished := o.now().UTC()
	record.FinishedAt = &finished

	err = o.advance(ctx, record, models.PromotionStatusCompleted)
	if err != nil {
		return outcome, o.fail(ctx, record, err, nil)
	}

	o.recordHistory(ctx, persistence.RecordKindDeployments, persistence.RecordRef{
		ID:            record.ID,
		TenantID:      record.TenantID,
		EnvironmentID: target.ID,
		CreatedAt:     finished,
	})
	o.announceCompletion(ctx, record, target, result)
	o.sink.Update(ctx, record.ID, jobs.JobStatusCompleted, jobs.Progress{Current: 6, Total: 6, Message: "completed"},
		map[string]any{
			"snapshot_id": record.SnapshotID,
			"deployed":    result.Deployed,
			"skipped":     result.Skipped,
		}, nil)

	o.logger.InfoContext(ctx, "Promotion completed",
		"promotion_id", record.ID,
		"target_env", target.ID,
		"snapshot_id", record.SnapshotID,
		"deployed", result.Deployed,
		"skipped", result.Skipped,
	)

	return outcome, nil
}

// precheckCredentials asks the runtime for its credential list before
// deploying. Failures are logged only: the deploy itself is the real test.
func (o *Orchestrator) precheckCredentials(ctx context.Context, adapter runtime.Adapter, target *models.Environment) {
	creds, err := adapter.GetCredentials(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "Credential precheck failed, continuing",
			"target_env", target.ID, "error", err)

		return
	}

	o.logger.DebugContext(ctx, "Credential precheck passed",
		"target_env", target.ID, "credentials", len(creds))
}

// buildItems pairs each snapshot workflow with the runtime id recorded in
// the target environment's mapping, when one exists. Unknown workflows get
// an empty id and are created by the deployer.
func (o *Orchestrator) buildItems(ctx context.Context, target *models.Environment, workflows map[string]map[string]any) ([]deployer.Item, error) {
	existing, err := o.mappings.ListByEnvironment(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list target mappings: %w", err)
	}

	byCanonical := make(map[string]*models.WorkflowEnvironmentMapping, len(existing))
	for _, mapping := range existing {
		if mapping.CanonicalID != "" {
			byCanonical[mapping.CanonicalID] = mapping
		}
	}

	keys := make([]string, 0, len(workflows))
	for key := range workflows {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	items := make([]deployer.Item, 0, len(keys))

	for _, key := range keys {
		item := deployer.Item{Key: key, Definition: workflows[key]}
		if mapping, ok := byCanonical[key]; ok {
			item.RuntimeID = mapping.RuntimeWorkflowID
		}

		items = append(items, item)
	}

	return items, nil
}

// compensate deletes the workflows a partially failed deploy created, best
// effort, and reports the pre-promotion snapshot as the restore point.
func (o *Orchestrator) compensate(ctx context.Context, adapter runtime.Adapter, result *deployer.Result, preDeployID string) *models.RollbackResult {
	created := result.CreatedRuntimeIDs()
	deleted, errs := o.deployer.DeleteWorkflows(ctx, adapter, created)

	o.logger.WarnContext(ctx, "Compensating rollback after partial deployment failure",
		"created", len(created), "deleted", deleted, "errors", len(errs))

	return &models.RollbackResult{
		RollbackTriggered:   true,
		RollbackMethod:      "git_restore",
		PreDeploySnapshotID: preDeployID,
		Deleted:             deleted,
		Errors:              errs,
	}
}

// refreshMappings links each deployed workflow to its runtime id and content
// hash in the target environment. A mapping write failure is logged, not
// fatal: the runtime already holds the content.
func (o *Orchestrator) refreshMappings(ctx context.Context, target *models.Environment, workflows map[string]map[string]any, result *deployer.Result) {
	now := o.now().UTC()

	for _, item := range result.Items {
		if item.Status == deployer.ItemStatusFailed || item.RuntimeID == "" {
			continue
		}

		def := workflows[item.Key]

		hash, err := fingerprint.HashRaw(def)
		if err != nil {
			o.logger.WarnContext(ctx, "Failed to hash deployed workflow", "key", item.Key, "error", err)

			continue
		}

		name, _ := def["name"].(string)
		linkedAt := now

		mapping, err := o.mappings.GetByRuntimeID(ctx, target.ID, item.RuntimeID)
		if err == nil && mapping.LinkedAt != nil {
			linkedAt = *mapping.LinkedAt
		}

		err = o.mappings.Save(ctx, &models.WorkflowEnvironmentMapping{
			CanonicalID:       item.Key,
			EnvironmentID:     target.ID,
			RuntimeWorkflowID: item.RuntimeID,
			WorkflowName:      name,
			Status:            models.MappingStatusLinked,
			EnvContentHash:    hash,
			WorkflowData:      def,
			LinkedAt:          &linkedAt,
			LastSeenAt:        now,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "Failed to refresh mapping", "key", item.Key, "error", err)
		}

		o.refreshGitMapping(ctx, target, item.Key, name, item.RuntimeID, hash, def, now)
	}
}

// refreshGitMapping mirrors the mapping into the Git tree: the canonical
// working copy next to the env-map sidecar carrying the runtime id and
// content hash per environment. Same non-fatal contract as the mapping
// repository write.
func (o *Orchestrator) refreshGitMapping(ctx context.Context, target *models.Environment, key, name, runtimeID, hash string, def map[string]any, now time.Time) {
	_, err := o.store.UpdateWorkingCopy(ctx, target.GitFolder, key, def)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to update working copy", "key", key, "error", err)
	}

	_, err = o.store.UpsertEnvMapEntry(ctx, target.GitFolder, key, name, target.ID, models.EnvMapSidecarEntry{
		RuntimeWorkflowID: runtimeID,
		ContentHash:       hash,
		LastSeenAt:        now,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to update env-map sidecar", "key", key, "error", err)
	}
}

func (o *Orchestrator) announceCompletion(ctx context.Context, record *models.PromotionRecord, target *models.Environment, result *deployer.Result) {
	if record.Rollback {
		o.publish(ctx, record.TenantID, events.PromotionRolledBack{
			BaseEvent:   o.baseEvent(events.PromotionRolledBackEvent, record.TenantID),
			PromotionID: record.ID,
			TargetEnvID: target.ID,
			SnapshotID:  record.SnapshotID,
		})

		return
	}

	o.publish(ctx, record.TenantID, events.PromotionCompleted{
		BaseEvent:   o.baseEvent(events.PromotionCompletedEvent, record.TenantID),
		PromotionID: record.ID,
		TargetEnvID: target.ID,
		SnapshotID:  record.SnapshotID,
		Deployed:    result.Deployed,
		Skipped:     result.Skipped,
		Duration:    record.FinishedAt.Sub(record.CreatedAt),
	})
}

func itemErrors(result *deployer.Result) []string {
	errs := make([]string, 0, result.Failed)

	for _, item := range result.Items {
		if item.Status == deployer.ItemStatusFailed && item.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", item.Key, item.Error))
		}
	}

	return errs
}

func runtimeIDs(result *deployer.Result) map[string]string {
	ids := make(map[string]string, len(result.Items))

	for _, item := range result.Items {
		if item.Status != deployer.ItemStatusFailed && item.RuntimeID != "" {
			ids[item.Key] = item.RuntimeID
		}
	}

	return ids
}
