// Package persistence provides the data storage abstraction for promotion
// records, drift incidents, workflow mappings, approvals and the historical
// records swept by retention.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/promion/pkg/models"
)

// RecordKind names the historical record tables retention sweeps.
type RecordKind string

const (
	RecordKindExecutions   RecordKind = "executions"
	RecordKindAuditLogs    RecordKind = "audit_logs"
	RecordKindActivityLogs RecordKind = "activity_logs"
	RecordKindSnapshots    RecordKind = "snapshots"
	RecordKindDeployments  RecordKind = "deployments"
)

// AllRecordKinds lists every kind retention considers, in sweep order.
var AllRecordKinds = []RecordKind{
	RecordKindExecutions,
	RecordKindAuditLogs,
	RecordKindActivityLogs,
	RecordKindSnapshots,
	RecordKindDeployments,
}

// PreservesLatestPerEnvironment reports whether the kind carries the
// latest-per-environment safety invariant.
func (k RecordKind) PreservesLatestPerEnvironment() bool {
	return k == RecordKindSnapshots || k == RecordKindDeployments
}

// RecordRef identifies one historical record for retention purposes.
type RecordRef struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	EnvironmentID string    `json:"environment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SweepCheckpoint records how far an in-progress retention sweep got, so a
// restarted sweep resumes after the last completed tenant instead of
// restarting from zero. At most one checkpoint exists at a time.
type SweepCheckpoint struct {
	SweepID    string    `json:"sweep_id"`
	LastTenant string    `json:"last_tenant"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Persistence bundles the repositories the promotion core persists through.
type Persistence interface {
	PromotionRepository() PromotionRepository
	IncidentRepository() IncidentRepository
	MappingRepository() MappingRepository
	ApprovalRepository() ApprovalRepository
	RetentionRepository() RetentionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// PromotionRepository stores promotion records.
type PromotionRepository interface {
	Save(ctx context.Context, record *models.PromotionRecord) error
	GetByID(ctx context.Context, id string) (*models.PromotionRecord, error)

	// ActiveByTenantAndTarget returns the single non-terminal record for a
	// (tenant, target environment) pair, or nil. This backs the
	// already_running request-deduplication contract.
	ActiveByTenantAndTarget(ctx context.Context, tenantID, targetEnvID string) (*models.PromotionRecord, error)

	ListByTenant(ctx context.Context, tenantID string) ([]*models.PromotionRecord, error)
	Delete(ctx context.Context, id string) error
}

// IncidentRepository stores drift incidents.
type IncidentRepository interface {
	Save(ctx context.Context, incident *models.DriftIncident) error
	GetByID(ctx context.Context, id string) (*models.DriftIncident, error)

	// ActiveByEnvironment returns non-closed incidents for an environment,
	// most recently detected first.
	ActiveByEnvironment(ctx context.Context, environmentID string) ([]*models.DriftIncident, error)

	Delete(ctx context.Context, id string) error
}

// MappingRepository stores workflow environment mappings.
type MappingRepository interface {
	Save(ctx context.Context, mapping *models.WorkflowEnvironmentMapping) error
	GetByRuntimeID(ctx context.Context, environmentID, runtimeWorkflowID string) (*models.WorkflowEnvironmentMapping, error)
	ListByEnvironment(ctx context.Context, environmentID string) ([]*models.WorkflowEnvironmentMapping, error)
	Delete(ctx context.Context, environmentID, runtimeWorkflowID string) error
}

// ApprovalRepository stores approval requests for gated actions and
// deployment overrides.
type ApprovalRepository interface {
	Save(ctx context.Context, approval *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// ListByIncident returns approvals scoped to an incident, newest first.
	ListByIncident(ctx context.Context, incidentID string) ([]*models.ApprovalRequest, error)
}

// RetentionRepository exposes the read/delete surface the retention engine
// sweeps with. It never touches the live runtime or the Git tree.
type RetentionRepository interface {
	Tenants(ctx context.Context) ([]string, error)
	CountByTenant(ctx context.Context, kind RecordKind, tenantID string) (int, error)

	// ListOlderThan returns up to limit records of the kind older than
	// cutoff, oldest first.
	ListOlderThan(ctx context.Context, kind RecordKind, tenantID string, cutoff time.Time, limit int) ([]RecordRef, error)

	// LatestPerEnvironment returns the id of the most recent record per
	// environment for kinds carrying the preservation invariant.
	LatestPerEnvironment(ctx context.Context, kind RecordKind, tenantID string) (map[string]string, error)

	DeleteBatch(ctx context.Context, kind RecordKind, ids []string) (int, error)

	// Insert records a historical record; used by the orchestrator to log
	// deployments and by tests to seed sweeps.
	Insert(ctx context.Context, kind RecordKind, ref RecordRef) error

	// SaveSweepCheckpoint upserts the single sweep checkpoint.
	SaveSweepCheckpoint(ctx context.Context, checkpoint *SweepCheckpoint) error

	// LoadSweepCheckpoint returns the stored checkpoint, or nil when no
	// sweep is in progress.
	LoadSweepCheckpoint(ctx context.Context) (*SweepCheckpoint, error)

	// ClearSweepCheckpoint removes the checkpoint after a completed sweep.
	// Clearing an absent checkpoint is not an error.
	ClearSweepCheckpoint(ctx context.Context) error
}
