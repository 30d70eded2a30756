package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

// PromotionRepository handles promotion record database operations.
type PromotionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPromotionRepository creates a new promotion repository.
func NewPromotionRepository(db *sql.DB, logger *slog.Logger) *PromotionRepository {
	return &PromotionRepository{db: db, logger: logger}
}

const promotionColumns = `
		id
	  , tenant_id
	  , source_env_id
	  , target_env_id
	  , status
	  , snapshot_id
	  , commit_sha
	  , source_snapshot_id
	  , workflows_count
	  , created_by
	  , reason
	  , created_at
	  , started_at
	  , finished_at
	  , approved_at
	  , approved_by
	  , error_message
	  , rollback
`

// Save upserts a promotion record.
func (r *PromotionRepository) Save(ctx context.Context, record *models.PromotionRecord) error {
	query := `
		INSERT INTO promotions (
			id, tenant_id, source_env_id, target_env_id, status, snapshot_id,
			commit_sha, source_snapshot_id, workflows_count, created_by, reason,
			created_at, started_at, finished_at, approved_at, approved_by,
			error_message, rollback
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot_id = EXCLUDED.snapshot_id,
			commit_sha = EXCLUDED.commit_sha,
			source_snapshot_id = EXCLUDED.source_snapshot_id,
			workflows_count = EXCLUDED.workflows_count,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			approved_at = EXCLUDED.approved_at,
			approved_by = EXCLUDED.approved_by,
			error_message = EXCLUDED.error_message
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		nullString(record.SourceEnvID),
		record.TargetEnvID,
		string(record.Status),
		nullString(record.SnapshotID),
		nullString(record.CommitSHA),
		nullString(record.SourceSnapshotID),
		record.WorkflowsCount,
		nullString(record.CreatedBy),
		nullString(record.Reason),
		record.CreatedAt,
		record.StartedAt,
		record.FinishedAt,
		record.ApprovedAt,
		nullString(record.ApprovedBy),
		nullString(record.ErrorMessage),
		record.Rollback,
	)
	if err != nil {
		return persistence.NewRecordError("save_promotion", record.ID, err)
	}

	return nil
}

// GetByID returns a promotion record by its ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*models.PromotionRecord, error) {
	query := `SELECT` + promotionColumns + `FROM promotions WHERE id = $1`

	record, err := r.scanPromotion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("get_promotion", id, persistence.ErrPromotionNotFound)
		}

		return nil, persistence.NewRecordError("get_promotion", id, err)
	}

	return record, nil
}

// ActiveByTenantAndTarget returns the single non-terminal record for a
// (tenant, target environment) pair, or nil.
func (r *PromotionRepository) ActiveByTenantAndTarget(ctx context.Context, tenantID, targetEnvID string) (*models.PromotionRecord, error) {
	query := `
		SELECT` + promotionColumns + `
		FROM promotions
		WHERE tenant_id = $1
		  AND target_env_id = $2
		  AND status NOT IN ('completed', 'failed', 'rejected')
		ORDER BY created_at DESC
		LIMIT 1
	`

	record, err := r.scanPromotion(r.db.QueryRowContext(ctx, query, tenantID, targetEnvID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewRecordError("active_promotion", tenantID, err)
	}

	return record, nil
}

// ListByTenant returns all promotion records for a tenant, newest first.
func (r *PromotionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.PromotionRecord, error) {
	query := `
		SELECT` + promotionColumns + `
		FROM promotions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, persistence.NewRecordError("list_promotions", tenantID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.PromotionRecord, 0)

	for rows.Next() {
		record, err := r.scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating promotions: %w", err)
	}

	return records, nil
}

// Delete removes a promotion record.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM promotions WHERE id = $1", id)
	if err != nil {
		return persistence.NewRecordError("delete_promotion", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("delete_promotion", id, err)
	}

	if affected == 0 {
		return persistence.NewRecordError("delete_promotion", id, persistence.ErrPromotionNotFound)
	}

	return nil
}

func (r *PromotionRepository) scanPromotion(row scannable) (*models.PromotionRecord, error) {
	var (
		record       models.PromotionRecord
		status       string
		sourceEnvID  sql.NullString
		snapshotID   sql.NullString
		commitSHA    sql.NullString
		sourceSnapID sql.NullString
		createdBy    sql.NullString
		reason       sql.NullString
		approvedBy   sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
		approvedAt   sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&sourceEnvID,
		&record.TargetEnvID,
		&status,
		&snapshotID,
		&commitSHA,
		&sourceSnapID,
		&record.WorkflowsCount,
		&createdBy,
		&reason,
		&record.CreatedAt,
		&startedAt,
		&finishedAt,
		&approvedAt,
		&approvedBy,
		&errorMessage,
		&record.Rollback,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.PromotionStatus(status)
	record.SourceEnvID = sourceEnvID.String
	record.SnapshotID = snapshotID.String
	record.CommitSHA = commitSHA.String
	record.SourceSnapshotID = sourceSnapID.String
	record.CreatedBy = createdBy.String
	record.Reason = reason.String
	record.ApprovedBy = approvedBy.String
	record.ErrorMessage = errorMessage.String
	record.StartedAt = nullTimePtr(startedAt)
	record.FinishedAt = nullTimePtr(finishedAt)
	record.ApprovedAt = nullTimePtr(approvedAt)

	return &record, nil
}
