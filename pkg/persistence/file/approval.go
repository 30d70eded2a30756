package file

import (
	"context"
	"os"
	"sort"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

const approvalsDir = "approvals"

// ApprovalRepository stores approval requests as JSON files.
type ApprovalRepository struct {
	p *Persistence
}

func (r *ApprovalRepository) Save(_ context.Context, approval *models.ApprovalRequest) error {
	err := r.p.writeJSON(approval, approvalsDir, approval.ID)
	if err != nil {
		return persistence.NewRecordError("Save", approval.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.ApprovalRequest, error) {
	var approval models.ApprovalRequest

	err := r.p.readJSON(&approval, approvalsDir, id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRecordError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", id, err)
	}

	return &approval, nil
}

func (r *ApprovalRepository) ListByIncident(_ context.Context, incidentID string) ([]*models.ApprovalRequest, error) {
	ids, err := r.p.listIDs(approvalsDir)
	if err != nil {
		return nil, err
	}

	approvals := make([]*models.ApprovalRequest, 0)

	for _, id := range ids {
		var approval models.ApprovalRequest

		err := r.p.readJSON(&approval, approvalsDir, id)
		if err != nil {
			continue
		}

		if approval.IncidentID == incidentID {
			approvals = append(approvals, &approval)
		}
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].RequestedAt.After(approvals[j].RequestedAt)
	})

	return approvals, nil
}
