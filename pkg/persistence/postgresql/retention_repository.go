package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/promion/pkg/persistence"
	"github.com/lib/pq"
)

// RetentionRepository handles historical record sweeping operations.
type RetentionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRetentionRepository creates a new retention repository.
func NewRetentionRepository(db *sql.DB, logger *slog.Logger) *RetentionRepository {
	return &RetentionRepository{db: db, logger: logger}
}

// Tenants returns the distinct tenants holding historical records.
func (r *RetentionRepository) Tenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT tenant_id FROM retention_records ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tenants := make([]string, 0)

	for rows.Next() {
		var tenant string

		err = rows.Scan(&tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}

		tenants = append(tenants, tenant)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// CountByTenant returns the number of records of a kind held by a tenant.
func (r *RetentionRepository) CountByTenant(ctx context.Context, kind persistence.RecordKind, tenantID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM retention_records WHERE kind = $1 AND tenant_id = $2",
		string(kind), tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	return count, nil
}

// ListOlderThan returns up to limit records of the kind older than cutoff,
// oldest first.
func (r *RetentionRepository) ListOlderThan(ctx context.Context, kind persistence.RecordKind, tenantID string, cutoff time.Time, limit int) ([]persistence.RecordRef, error) {
	query := `
		SELECT id, tenant_id, COALESCE(environment_id, ''), created_at
		FROM retention_records
		WHERE kind = $1 AND tenant_id = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, string(kind), tenantID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query old records: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	refs := make([]persistence.RecordRef, 0)

	for rows.Next() {
		var ref persistence.RecordRef

		err = rows.Scan(&ref.ID, &ref.TenantID, &ref.EnvironmentID, &ref.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record ref: %w", err)
		}

		refs = append(refs, ref)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating record refs: %w", err)
	}

	return refs, nil
}

// LatestPerEnvironment returns the id of the most recent record per
// environment.
func (r *RetentionRepository) LatestPerEnvironment(ctx context.Context, kind persistence.RecordKind, tenantID string) (map[string]string, error) {
	query := `
		SELECT DISTINCT ON (environment_id) environment_id, id
		FROM retention_records
		WHERE kind = $1 AND tenant_id = $2 AND environment_id IS NOT NULL
		ORDER BY environment_id, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, string(kind), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest records: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	latest := make(map[string]string)

	for rows.Next() {
		var environmentID, id string

		err = rows.Scan(&environmentID, &id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan latest record: %w", err)
		}

		latest[environmentID] = id
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating latest records: %w", err)
	}

	return latest, nil
}

// DeleteBatch removes the given records and reports how many were deleted.
func (r *RetentionRepository) DeleteBatch(ctx context.Context, kind persistence.RecordKind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM retention_records WHERE kind = $1 AND id = ANY($2)",
		string(kind), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count: %w", err)
	}

	return int(affected), nil
}

// Insert records a historical record.
func (r *RetentionRepository) Insert(ctx context.Context, kind persistence.RecordKind, ref persistence.RecordRef) error {
	query := `
		INSERT INTO retention_records (kind, id, tenant_id, environment_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		string(kind), ref.ID, ref.TenantID, nullString(ref.EnvironmentID), ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// SaveSweepCheckpoint upserts the single sweep checkpoint row.
func (r *RetentionRepository) SaveSweepCheckpoint(ctx context.Context, checkpoint *persistence.SweepCheckpoint) error {
	query := `
		INSERT INTO retention_sweep_checkpoint (id, sweep_id, last_tenant, started_at, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			sweep_id = EXCLUDED.sweep_id,
			last_tenant = EXCLUDED.last_tenant,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		checkpoint.SweepID, checkpoint.LastTenant, checkpoint.StartedAt, checkpoint.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save sweep checkpoint: %w", err)
	}

	return nil
}

// LoadSweepCheckpoint returns the stored checkpoint, or nil when no sweep is
// in progress.
func (r *RetentionRepository) LoadSweepCheckpoint(ctx context.Context) (*persistence.SweepCheckpoint, error) {
	var checkpoint persistence.SweepCheckpoint

	err := r.db.QueryRowContext(ctx,
		"SELECT sweep_id, last_tenant, started_at, updated_at FROM retention_sweep_checkpoint WHERE id = 1").
		Scan(&checkpoint.SweepID, &checkpoint.LastTenant, &checkpoint.StartedAt, &checkpoint.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load sweep checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// ClearSweepCheckpoint removes the checkpoint after a completed sweep.
func (r *RetentionRepository) ClearSweepCheckpoint(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM retention_sweep_checkpoint WHERE id = 1")
	if err != nil {
		return fmt.Errorf("failed to clear sweep checkpoint: %w", err)
	}

	return nil
}
