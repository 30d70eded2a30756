// Package jobs tracks background units of work and reports their progress.
// Job creation is idempotent per (tenant, target environment): triggering a
// promotion that already has a non-terminal record outstanding returns the
// existing record instead of creating a duplicate.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/google/uuid"
)

// JobStatus names the coarse lifecycle a progress sink reports.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Progress is a checkpoint within one unit of work.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// ProgressSink receives job progress checkpoints. Implementations must be
// safe to call from the middle of a promotion; a sink failure never fails
// the job itself.
type ProgressSink interface {
	Update(ctx context.Context, jobID string, status JobStatus, progress Progress, result map[string]any, jobErr error)
}

// NoopSink discards all progress updates.
type NoopSink struct{}

func (NoopSink) Update(context.Context, string, JobStatus, Progress, map[string]any, error) {}

// StartResult reports the outcome of an idempotent job start.
type StartResult struct {
	Record         *models.PromotionRecord
	AlreadyRunning bool
}

// SyncJob tracks one in-flight environment sync. Syncs are short-lived and
// run to completion in-process, so the dedup table lives in memory;
// persisted promotion records still block a sync against an environment
// mid-promotion.
type SyncJob struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	EnvironmentID string    `json:"environment_id"`
	StartedAt     time.Time `json:"started_at"`
}

// SyncStartResult reports the outcome of an idempotent sync start. Blocking
// is set when a running promotion, not another sync, holds the environment.
type SyncStartResult struct {
	Job            *SyncJob
	Blocking       *models.PromotionRecord
	AlreadyRunning bool
}

// Manager creates promotion job records with request deduplication.
type Manager struct {
	promotions persistence.PromotionRepository
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	syncs map[string]*SyncJob
}

// NewManager creates a job manager.
func NewManager(logger *slog.Logger, promotions persistence.PromotionRepository) *Manager {
	return &Manager{
		promotions: promotions,
		logger:     logger.With("module", "jobs"),
		now:        time.Now,
		syncs:      make(map[string]*SyncJob),
	}
}

func syncKey(tenantID, environmentID string) string {
	return tenantID + "/" + environmentID
}

// StartSync registers an environment sync for the (tenant, environment)
// pair, or reports the sync or promotion already holding it. Callers must
// release the registration with FinishSync.
func (m *Manager) StartSync(ctx context.Context, tenantID, environmentID string) (*SyncStartResult, error) {
	existing, err := m.promotions.ActiveByTenantAndTarget(ctx, tenantID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active promotion: %w", err)
	}

	if existing != nil {
		m.logger.InfoContext(ctx, "Promotion in flight, sync not started",
			"tenant_id", tenantID, "environment_id", environmentID, "promotion_id", existing.ID)

		return &SyncStartResult{Blocking: existing, AlreadyRunning: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := syncKey(tenantID, environmentID)
	if job, ok := m.syncs[key]; ok {
		m.logger.InfoContext(ctx, "Sync already running, returning existing job",
			"tenant_id", tenantID, "environment_id", environmentID, "job_id", job.ID)

		return &SyncStartResult{Job: job, AlreadyRunning: true}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sync job ID: %w", err)
	}

	job := &SyncJob{
		ID:            id.String(),
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		StartedAt:     m.now().UTC(),
	}
	m.syncs[key] = job

	return &SyncStartResult{Job: job}, nil
}

// FinishSync releases the sync registration for the (tenant, environment)
// pair.
func (m *Manager) FinishSync(tenantID, environmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.syncs, syncKey(tenantID, environmentID))
}

// StartPromotion returns a fresh pending record for the (tenant, target
// environment) pair, or the existing non-terminal record with
// AlreadyRunning set. This is a request-deduplication contract, not a queue.
func (m *Manager) StartPromotion(
	ctx context.Context,
	tenantID, sourceEnvID, targetEnvID, createdBy, reason string,
	rollback bool,
) (*StartResult, error) {
	existing, err := m.promotions.ActiveByTenantAndTarget(ctx, tenantID, targetEnvID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active promotion: %w", err)
	}

	if existing != nil {
		m.logger.InfoContext(ctx, "Promotion already running, returning existing record",
			"tenant_id", tenantID, "target_env_id", targetEnvID, "promotion_id", existing.ID)

		return &StartResult{Record: existing, AlreadyRunning: true}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate promotion ID: %w", err)
	}

	record := &models.PromotionRecord{
		ID:          id.String(),
		TenantID:    tenantID,
		SourceEnvID: sourceEnvID,
		TargetEnvID: targetEnvID,
		Status:      models.PromotionStatusPending,
		CreatedBy:   createdBy,
		Reason:      reason,
		CreatedAt:   m.now().UTC(),
		Rollback:    rollback,
	}

	err = m.promotions.Save(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save promotion record: %w", err)
	}

	return &StartResult{Record: record}, nil
}
