// Package retention deletes historical records older than a tenant's
// plan-determined retention window. A sweep never reduces a tenant below the
// safety floor and never deletes the most recent snapshot or deployment
// record per environment.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/google/uuid"
)

const (
	// DefaultSafetyFloor is the record count at or below which deletion is
	// skipped entirely for a tenant.
	DefaultSafetyFloor = 100

	// DefaultBatchSize bounds each delete batch.
	DefaultBatchSize = 500

	defaultRetentionDays = 7
)

// KindResult reports one sweep of one record kind for one tenant.
type KindResult struct {
	Kind          persistence.RecordKind `json:"kind"`
	RetentionDays int                    `json:"retention_days"`
	TotalRecords  int                    `json:"total_records"`
	Eligible      int                    `json:"eligible"`
	Preserved     int                    `json:"preserved"`
	Deleted       int                    `json:"deleted"`
	SkippedFloor  bool                   `json:"skipped_floor"`
}

// TenantResult aggregates one tenant's sweep across all record kinds.
type TenantResult struct {
	TenantID string       `json:"tenant_id"`
	Kinds    []KindResult `json:"kinds"`
	Deleted  int          `json:"deleted"`
}

// SweepResult aggregates a full sweep across all tenants.
type SweepResult struct {
	Tenants    []TenantResult `json:"tenants"`
	Deleted    int            `json:"deleted"`
	DryRun     bool           `json:"dry_run"`
	Resumed    bool           `json:"resumed,omitempty"`
	Skipped    int            `json:"skipped,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Engine sweeps historical records per tenant and per record kind.
type Engine struct {
	repo        persistence.RetentionRepository
	gate        entitlements.Gate
	logger      *slog.Logger
	now         func() time.Time
	safetyFloor int
	batchSize   int
}

// NewEngine creates a retention engine with the default safety floor and
// batch size.
func NewEngine(logger *slog.Logger, repo persistence.RetentionRepository, gate entitlements.Gate) *Engine {
	return &Engine{
		repo:        repo,
		gate:        gate,
		logger:      logger.With("module", "retention"),
		now:         time.Now,
		safetyFloor: DefaultSafetyFloor,
		batchSize:   DefaultBatchSize,
	}
}

// SweepAll sweeps every tenant holding historical records. Per-tenant
// failures are recorded without aborting the sweep for other tenants. A
// checkpoint is written after each tenant so a restarted sweep resumes
// where the interrupted one stopped; Tenants returns a sorted list, which
// is what makes the last-completed-tenant comparison valid. Dry runs
// neither consume nor write checkpoints.
func (e *Engine) SweepAll(ctx context.Context, dryRun bool) (*SweepResult, error) {
	result := &SweepResult{DryRun: dryRun, StartedAt: e.now().UTC()}

	tenants, err := e.repo.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	resumeAfter := ""
	sweepID := ""

	if !dryRun {
		checkpoint, err := e.repo.LoadSweepCheckpoint(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "Sweep checkpoint load failed, sweeping all tenants", "error", err)
		} else if checkpoint != nil {
			resumeAfter = checkpoint.LastTenant
			sweepID = checkpoint.SweepID
			result.Resumed = true

			e.logger.InfoContext(ctx, "Resuming interrupted sweep",
				"sweep_id", sweepID, "last_tenant", resumeAfter)
		}

		if sweepID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("failed to generate sweep id: %w", err)
			}

			sweepID = id.String()
		}
	}

	for _, tenantID := range tenants {
		if resumeAfter != "" && tenantID <= resumeAfter {
			result.Skipped++

			continue
		}

		tenantResult, err := e.SweepTenant(ctx, tenantID, dryRun)
		if err != nil {
			e.logger.ErrorContext(ctx, "Tenant sweep failed", "tenant_id", tenantID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("tenant %s: %v", tenantID, err))

			continue
		}

		result.Tenants = append(result.Tenants, *tenantResult)
		result.Deleted += tenantResult.Deleted

		if !dryRun {
			err = e.repo.SaveSweepCheckpoint(ctx, &persistence.SweepCheckpoint{
				SweepID:    sweepID,
				LastTenant: tenantID,
				StartedAt:  result.StartedAt,
				UpdatedAt:  e.now().UTC(),
			})
			if err != nil {
				e.logger.WarnContext(ctx, "Failed to save sweep checkpoint",
					"tenant_id", tenantID, "error", err)
			}
		}
	}

	if !dryRun {
		err = e.repo.ClearSweepCheckpoint(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to clear sweep checkpoint", "error", err)
		}
	}

	result.FinishedAt = e.now().UTC()

	e.logger.InfoContext(ctx, "Retention sweep completed",
		"tenants", len(tenants), "skipped", result.Skipped, "deleted", result.Deleted,
		"dry_run", dryRun, "errors", len(result.Errors))

	return result, nil
}

// SweepTenant sweeps all record kinds for one tenant.
func (e *Engine) SweepTenant(ctx context.Context, tenantID string, dryRun bool) (*TenantResult, error) {
	days, err := e.gate.RetentionDays(ctx, tenantID)
	if err != nil {
		e.logger.WarnContext(ctx, "Retention window resolution failed, using default",
			"tenant_id", tenantID, "error", err)

		days = defaultRetentionDays
	}

	result := &TenantResult{TenantID: tenantID}
	cutoff := e.now().UTC().AddDate(0, 0, -days)

	for _, kind := range persistence.AllRecordKinds {
		kindResult, err := e.sweepKind(ctx, kind, tenantID, days, cutoff, dryRun)
		if err != nil {
			return nil, fmt.Errorf("sweep of %s failed: %w", kind, err)
		}

		result.Kinds = append(result.Kinds, *kindResult)
		result.Deleted += kindResult.Deleted
	}

	return result, nil
}

func (e *Engine) sweepKind(
	ctx context.Context,
	kind persistence.RecordKind,
	tenantID string,
	days int,
	cutoff time.Time,
	dryRun bool,
) (*KindResult, error) {
	result := &KindResult{Kind: kind, RetentionDays: days}

	total, err := e.repo.CountByTenant(ctx, kind, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	result.TotalRecords = total

	if total <= e.safetyFloor {
		result.SkippedFloor = true

		return result, nil
	}

	// Deleting below the floor is never allowed, even when more records are
	// older than the cutoff.
	budget := total - e.safetyFloor

	preserved := make(map[string]bool)

	if kind.PreservesLatestPerEnvironment() {
		latest, err := e.repo.LatestPerEnvironment(ctx, kind, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve latest records: %w", err)
		}

		for _, id := range latest {
			preserved[id] = true
		}

		result.Preserved = len(preserved)
	}

	if dryRun {
		refs, err := e.repo.ListOlderThan(ctx, kind, tenantID, cutoff, total)
		if err != nil {
			return nil, fmt.Errorf("failed to list old records: %w", err)
		}

		for _, ref := range refs {
			if preserved[ref.ID] {
				continue
			}

			result.Eligible++

			if result.Eligible == budget {
				break
			}
		}

		return result, nil
	}

	for budget > 0 {
		// Over-fetch by the preserved set size so a batch cannot consist
		// solely of preserved records and stall.
		refs, err := e.repo.ListOlderThan(ctx, kind, tenantID, cutoff, e.batchSize+len(preserved))
		if err != nil {
			return nil, fmt.Errorf("failed to list old records: %w", err)
		}

		candidates := make([]string, 0, len(refs))

		for _, ref := range refs {
			if preserved[ref.ID] {
				continue
			}

			candidates = append(candidates, ref.ID)

			if len(candidates) == budget || len(candidates) == e.batchSize {
				break
			}
		}

		if len(candidates) == 0 {
			break
		}

		result.Eligible += len(candidates)

		deleted, err := e.repo.DeleteBatch(ctx, kind, candidates)
		if err != nil {
			return nil, fmt.Errorf("failed to delete batch: %w", err)
		}

		if deleted == 0 {
			break
		}

		result.Deleted += deleted
		budget -= deleted
	}

	if result.Deleted > 0 {
		e.logger.InfoContext(ctx, "Swept records",
			"kind", kind, "tenant_id", tenantID, "deleted", result.Deleted, "cutoff", cutoff)
	}

	return result, nil
}
