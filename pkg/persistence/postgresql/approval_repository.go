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

// ApprovalRepository handles approval request database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `
		id
	  , tenant_id
	  , incident_id
	  , action_type
	  , override
	  , state
	  , requested_by
	  , decided_by
	  , requested_at
	  , decided_at
`

// Save upserts an approval request.
func (r *ApprovalRepository) Save(ctx context.Context, approval *models.ApprovalRequest) error {
	query := `
		INSERT INTO approvals (
			id, tenant_id, incident_id, action_type, override, state,
			requested_by, decided_by, requested_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			decided_by = EXCLUDED.decided_by,
			decided_at = EXCLUDED.decided_at
	`

	_, err := r.db.ExecContext(ctx, query,
		approval.ID,
		approval.TenantID,
		nullString(approval.IncidentID),
		nullString(string(approval.ActionType)),
		approval.Override,
		string(approval.State),
		nullString(approval.RequestedBy),
		nullString(approval.DecidedBy),
		approval.RequestedAt,
		approval.DecidedAt,
	)
	if err != nil {
		return persistence.NewRecordError("save_approval", approval.ID, err)
	}

	return nil
}

// GetByID returns an approval request by its ID.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `FROM approvals WHERE id = $1`

	approval, err := r.scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("get_approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewRecordError("get_approval", id, err)
	}

	return approval, nil
}

// ListByIncident returns approvals scoped to an incident, newest first.
func (r *ApprovalRepository) ListByIncident(ctx context.Context, incidentID string) ([]*models.ApprovalRequest, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM approvals
		WHERE incident_id = $1
		ORDER BY requested_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, persistence.NewRecordError("list_approvals", incidentID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	approvals := make([]*models.ApprovalRequest, 0)

	for rows.Next() {
		approval, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func (r *ApprovalRepository) scanApproval(row scannable) (*models.ApprovalRequest, error) {
	var (
		approval    models.ApprovalRequest
		incidentID  sql.NullString
		actionType  sql.NullString
		state       string
		requestedBy sql.NullString
		decidedBy   sql.NullString
		decidedAt   sql.NullTime
	)

	err := row.Scan(
		&approval.ID,
		&approval.TenantID,
		&incidentID,
		&actionType,
		&approval.Override,
		&state,
		&requestedBy,
		&decidedBy,
		&approval.RequestedAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	approval.IncidentID = incidentID.String
	approval.ActionType = models.IncidentActionType(actionType.String)
	approval.State = models.ApprovalState(state)
	approval.RequestedBy = requestedBy.String
	approval.DecidedBy = decidedBy.String
	approval.DecidedAt = nullTimePtr(decidedAt)

	return &approval, nil
}
