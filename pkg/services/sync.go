package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/runtime"
)

// SyncRequest asks for an environment sync: refresh the mapping table from
// the runtime's current workflow inventory.
type SyncRequest struct {
	TenantID      string `validate:"required"`
	EnvironmentID string `validate:"required"`
	RequestedBy   string `validate:"required"`
}

// SyncResult is the envelope environment sync returns. The first sync of an
// environment counts against the tenant's environment quota.
type SyncResult struct {
	Kind      ResultKind                     `json:"kind"`
	Job       *jobs.SyncJob                  `json:"job,omitempty"`
	Quota     *entitlements.EnvironmentQuota `json:"quota,omitempty"`
	Synced    int                            `json:"synced"`
	Untracked int                            `json:"untracked"`
	Missing   int                            `json:"missing"`
	Issues    []ValidationIssue              `json:"issues,omitempty"`
	Err       error                          `json:"-"`
}

// SyncEnvironment pulls the runtime's workflow inventory into the mapping
// table: new workflows become untracked mappings, known ones refresh their
// hash and payload, and mappings whose runtime workflow disappeared are
// marked missing. Canonical links are never changed here; that takes an
// explicit canonicalize action.
func (s *Promotion) SyncEnvironment(ctx context.Context, req SyncRequest) *SyncResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &SyncResult{Kind: ResultValidationError, Issues: issues}
	}

	entry, err := s.directory.GetEnvironment(ctx, req.EnvironmentID)
	if err != nil {
		return s.syncFailure(s.environmentFailure(ctx, req.EnvironmentID, err))
	}

	if entry.Environment.TenantID != req.TenantID {
		return &SyncResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "environment belongs to a different tenant",
		}}}
	}

	existing, err := s.persistence.MappingRepository().ListByEnvironment(ctx, req.EnvironmentID)
	if err != nil {
		return s.syncFailure(s.internal(ctx, "list mappings", err))
	}

	// A never-synced environment is being brought under management; that is
	// the moment the environment quota applies.
	if len(existing) == 0 {
		quota, err := s.gate.CanAddEnvironment(ctx, req.TenantID)
		if err != nil {
			return s.syncFailure(s.internal(ctx, "check environment quota", err))
		}

		if !quota.Allowed {
			return &SyncResult{Kind: ResultForbidden, Quota: quota, Issues: []ValidationIssue{{
				Check:       "environment_quota",
				Detail:      quota.Reason,
				Remediation: fmt.Sprintf("Upgrade the plan or remove an environment (%d of %d in use).", quota.Current, quota.Max),
			}}}
		}
	}

	start, err := s.manager.StartSync(ctx, req.TenantID, req.EnvironmentID)
	if err != nil {
		return s.syncFailure(s.internal(ctx, "start sync", err))
	}

	if start.AlreadyRunning {
		return &SyncResult{Kind: ResultAlreadyRunning, Job: start.Job}
	}

	defer s.manager.FinishSync(req.TenantID, req.EnvironmentID)

	adapter, err := s.registry.CreateAdapter(entry.Environment, entry.Config)
	if err != nil {
		return s.syncFailure(s.internal(ctx, "create runtime adapter", err))
	}

	result := s.syncMappings(ctx, entry.Environment, adapter, existing)
	result.Job = start.Job

	return result
}

func (s *Promotion) syncMappings(ctx context.Context, env *models.Environment, adapter runtime.Adapter, existing []*models.WorkflowEnvironmentMapping) *SyncResult {
	summaries, err := adapter.GetWorkflows(ctx)
	if err != nil {
		return s.syncFailure(s.internal(ctx, "list runtime workflows", err))
	}

	mappings := s.persistence.MappingRepository()
	now := time.Now().UTC()
	seen := make(map[string]bool, len(summaries))
	result := &SyncResult{Kind: ResultSuccess}

	for _, summary := range summaries {
		seen[summary.ID] = true

		def, err := adapter.GetWorkflow(ctx, summary.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to fetch workflow during sync",
				"environment_id", env.ID, "runtime_id", summary.ID, "error", err)

			continue
		}

		hash, err := fingerprint.HashRaw(def)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to hash workflow during sync",
				"environment_id", env.ID, "runtime_id", summary.ID, "error", err)

			continue
		}

		mapping, err := mappings.GetByRuntimeID(ctx, env.ID, summary.ID)
		switch {
		case err == nil:
			// A previously missing workflow reappearing under its runtime id
			// regains its linked status; the canonical id never changes.
			if mapping.Status == models.MappingStatusMissing && mapping.CanonicalID != "" {
				mapping.Status = models.MappingStatusLinked
			}
		case persistence.IsMappingNotFound(err):
			mapping = &models.WorkflowEnvironmentMapping{
				EnvironmentID:     env.ID,
				RuntimeWorkflowID: summary.ID,
				Status:            models.MappingStatusUntracked,
			}
			result.Untracked++
		default:
			s.logger.WarnContext(ctx, "Failed to load mapping during sync",
				"environment_id", env.ID, "runtime_id", summary.ID, "error", err)

			continue
		}

		mapping.WorkflowName = summary.Name
		mapping.EnvContentHash = hash
		mapping.WorkflowData = def
		mapping.LastSeenAt = now

		if err := mappings.Save(ctx, mapping); err != nil {
			s.logger.WarnContext(ctx, "Failed to save mapping during sync",
				"environment_id", env.ID, "runtime_id", summary.ID, "error", err)

			continue
		}

		result.Synced++
	}

	for _, mapping := range existing {
		if seen[mapping.RuntimeWorkflowID] || mapping.Status == models.MappingStatusMissing {
			continue
		}

		mapping.Status = models.MappingStatusMissing

		if err := mappings.Save(ctx, mapping); err != nil {
			s.logger.WarnContext(ctx, "Failed to mark mapping missing during sync",
				"environment_id", env.ID, "runtime_id", mapping.RuntimeWorkflowID, "error", err)

			continue
		}

		result.Missing++
	}

	return result
}

// syncFailure reshapes a promotion-result failure into the sync envelope.
func (s *Promotion) syncFailure(failure *PromotionResult) *SyncResult {
	return &SyncResult{Kind: failure.Kind, Issues: failure.Issues, Err: failure.Err}
}
