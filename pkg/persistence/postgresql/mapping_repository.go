package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

// MappingRepository handles workflow environment mapping database operations.
type MappingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMappingRepository creates a new mapping repository.
func NewMappingRepository(db *sql.DB, logger *slog.Logger) *MappingRepository {
	return &MappingRepository{db: db, logger: logger}
}

const mappingColumns = `
		environment_id
	  , runtime_workflow_id
	  , canonical_id
	  , workflow_name
	  , status
	  , env_content_hash
	  , workflow_data
	  , linked_at
	  , last_seen_at
`

// Save upserts a workflow environment mapping.
func (r *MappingRepository) Save(ctx context.Context, mapping *models.WorkflowEnvironmentMapping) error {
	var workflowJSON []byte

	if mapping.WorkflowData != nil {
		var err error

		workflowJSON, err = json.Marshal(mapping.WorkflowData)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow data: %w", err)
		}
	}

	query := `
		INSERT INTO workflow_mappings (
			environment_id, runtime_workflow_id, canonical_id, workflow_name,
			status, env_content_hash, workflow_data, linked_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (environment_id, runtime_workflow_id) DO UPDATE SET
			canonical_id = EXCLUDED.canonical_id,
			workflow_name = EXCLUDED.workflow_name,
			status = EXCLUDED.status,
			env_content_hash = EXCLUDED.env_content_hash,
			workflow_data = EXCLUDED.workflow_data,
			linked_at = EXCLUDED.linked_at,
			last_seen_at = EXCLUDED.last_seen_at
	`

	_, err := r.db.ExecContext(ctx, query,
		mapping.EnvironmentID,
		mapping.RuntimeWorkflowID,
		nullString(mapping.CanonicalID),
		nullString(mapping.WorkflowName),
		string(mapping.Status),
		nullString(mapping.EnvContentHash),
		workflowJSON,
		mapping.LinkedAt,
		mapping.LastSeenAt,
	)
	if err != nil {
		return persistence.NewRecordError("save_mapping", mapping.RuntimeWorkflowID, err)
	}

	return nil
}

// GetByRuntimeID returns the mapping for a runtime workflow within one
// environment.
func (r *MappingRepository) GetByRuntimeID(ctx context.Context, environmentID, runtimeWorkflowID string) (*models.WorkflowEnvironmentMapping, error) {
	query := `SELECT` + mappingColumns + `FROM workflow_mappings WHERE environment_id = $1 AND runtime_workflow_id = $2`

	mapping, err := r.scanMapping(r.db.QueryRowContext(ctx, query, environmentID, runtimeWorkflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("get_mapping", runtimeWorkflowID, persistence.ErrMappingNotFound)
		}

		return nil, persistence.NewRecordError("get_mapping", runtimeWorkflowID, err)
	}

	return mapping, nil
}

// ListByEnvironment returns all mappings for an environment.
func (r *MappingRepository) ListByEnvironment(ctx context.Context, environmentID string) ([]*models.WorkflowEnvironmentMapping, error) {
	query := `
		SELECT` + mappingColumns + `
		FROM workflow_mappings
		WHERE environment_id = $1
		ORDER BY runtime_workflow_id
	`

	rows, err := r.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, persistence.NewRecordError("list_mappings", environmentID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	mappings := make([]*models.WorkflowEnvironmentMapping, 0)

	for rows.Next() {
		mapping, err := r.scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}

		mappings = append(mappings, mapping)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}

	return mappings, nil
}

// Delete removes a mapping.
func (r *MappingRepository) Delete(ctx context.Context, environmentID, runtimeWorkflowID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workflow_mappings WHERE environment_id = $1 AND runtime_workflow_id = $2",
		environmentID, runtimeWorkflowID)
	if err != nil {
		return persistence.NewRecordError("delete_mapping", runtimeWorkflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("delete_mapping", runtimeWorkflowID, err)
	}

	if affected == 0 {
		return persistence.NewRecordError("delete_mapping", runtimeWorkflowID, persistence.ErrMappingNotFound)
	}

	return nil
}

func (r *MappingRepository) scanMapping(row scannable) (*models.WorkflowEnvironmentMapping, error) {
	var (
		mapping      models.WorkflowEnvironmentMapping
		canonicalID  sql.NullString
		workflowName sql.NullString
		status       string
		contentHash  sql.NullString
		workflowJSON []byte
		linkedAt     sql.NullTime
	)

	err := row.Scan(
		&mapping.EnvironmentID,
		&mapping.RuntimeWorkflowID,
		&canonicalID,
		&workflowName,
		&status,
		&contentHash,
		&workflowJSON,
		&linkedAt,
		&mapping.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	mapping.CanonicalID = canonicalID.String
	mapping.WorkflowName = workflowName.String
	mapping.Status = models.MappingStatus(status)
	mapping.EnvContentHash = contentHash.String
	mapping.LinkedAt = nullTimePtr(linkedAt)

	if len(workflowJSON) > 0 {
		err = json.Unmarshal(workflowJSON, &mapping.WorkflowData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow data: %w", err)
		}
	}

	return &mapping, nil
}
