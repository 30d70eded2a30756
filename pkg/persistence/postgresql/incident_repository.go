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

// IncidentRepository handles drift incident database operations.
type IncidentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewIncidentRepository creates a new incident repository.
func NewIncidentRepository(db *sql.DB, logger *slog.Logger) *IncidentRepository {
	return &IncidentRepository{db: db, logger: logger}
}

const incidentColumns = `
		id
	  , tenant_id
	  , environment_id
	  , status
	  , severity
	  , affected_workflows
	  , owner_user_id
	  , detected_at
	  , expires_at
	  , closed_at
`

// Save upserts a drift incident.
func (r *IncidentRepository) Save(ctx context.Context, incident *models.DriftIncident) error {
	affectedJSON, err := json.Marshal(incident.AffectedWorkflows)
	if err != nil {
		return fmt.Errorf("failed to marshal affected workflows: %w", err)
	}

	query := `
		INSERT INTO drift_incidents (
			id, tenant_id, environment_id, status, severity, affected_workflows,
			owner_user_id, detected_at, expires_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			severity = EXCLUDED.severity,
			affected_workflows = EXCLUDED.affected_workflows,
			owner_user_id = EXCLUDED.owner_user_id,
			expires_at = EXCLUDED.expires_at,
			closed_at = EXCLUDED.closed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		incident.ID,
		incident.TenantID,
		incident.EnvironmentID,
		string(incident.Status),
		nullString(string(incident.Severity)),
		affectedJSON,
		nullString(incident.OwnerUserID),
		incident.DetectedAt,
		incident.ExpiresAt,
		incident.ClosedAt,
	)
	if err != nil {
		return persistence.NewRecordError("save_incident", incident.ID, err)
	}

	return nil
}

// GetByID returns a drift incident by its ID.
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*models.DriftIncident, error) {
	query := `SELECT` + incidentColumns + `FROM drift_incidents WHERE id = $1`

	incident, err := r.scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("get_incident", id, persistence.ErrIncidentNotFound)
		}

		return nil, persistence.NewRecordError("get_incident", id, err)
	}

	return incident, nil
}

// ActiveByEnvironment returns non-closed incidents for an environment, most
// recently detected first.
func (r *IncidentRepository) ActiveByEnvironment(ctx context.Context, environmentID string) ([]*models.DriftIncident, error) {
	query := `
		SELECT` + incidentColumns + `
		FROM drift_incidents
		WHERE environment_id = $1 AND status != 'closed'
		ORDER BY detected_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, persistence.NewRecordError("active_incidents", environmentID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	incidents := make([]*models.DriftIncident, 0)

	for rows.Next() {
		incident, err := r.scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}

		incidents = append(incidents, incident)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}

	return incidents, nil
}

// Delete removes a drift incident.
func (r *IncidentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM drift_incidents WHERE id = $1", id)
	if err != nil {
		return persistence.NewRecordError("delete_incident", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("delete_incident", id, err)
	}

	if affected == 0 {
		return persistence.NewRecordError("delete_incident", id, persistence.ErrIncidentNotFound)
	}

	return nil
}

func (r *IncidentRepository) scanIncident(row scannable) (*models.DriftIncident, error) {
	var (
		incident     models.DriftIncident
		status       string
		severity     sql.NullString
		affectedJSON []byte
		ownerUserID  sql.NullString
		expiresAt    sql.NullTime
		closedAt     sql.NullTime
	)

	err := row.Scan(
		&incident.ID,
		&incident.TenantID,
		&incident.EnvironmentID,
		&status,
		&severity,
		&affectedJSON,
		&ownerUserID,
		&incident.DetectedAt,
		&expiresAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.Status = models.DriftIncidentStatus(status)
	incident.Severity = models.DriftSeverity(severity.String)
	incident.OwnerUserID = ownerUserID.String
	incident.ExpiresAt = nullTimePtr(expiresAt)
	incident.ClosedAt = nullTimePtr(closedAt)

	if len(affectedJSON) > 0 {
		err = json.Unmarshal(affectedJSON, &incident.AffectedWorkflows)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal affected workflows: %w", err)
		}
	}

	return &incident, nil
}
