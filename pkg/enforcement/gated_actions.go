package enforcement

import (
	"context"
	"log/slog"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

// ApprovalStatus names the outcome of an incident action approval check.
type ApprovalStatus string

const (
	ApprovalNotRequired      ApprovalStatus = "NOT_REQUIRED"
	ApprovalRequiredApproved ApprovalStatus = "REQUIRED_APPROVED"
	ApprovalRequiredPending  ApprovalStatus = "REQUIRED_PENDING"
	ApprovalRequiredRejected ApprovalStatus = "REQUIRED_REJECTED"
	ApprovalRequiredNoReq    ApprovalStatus = "REQUIRED_NO_REQUEST"
)

// ActionDecision is the outcome of one gated action check.
type ActionDecision struct {
	Allowed  bool
	Status   ApprovalStatus
	Approval *models.ApprovalRequest // The deciding approval record, when one exists
}

// GatedActionService governs whether incident actions such as acknowledge,
// extend_ttl or reconcile need a human approval first. A nil policy means no
// approval requirements at all.
type GatedActionService struct {
	approvals persistence.ApprovalRepository
	logger    *slog.Logger
}

// NewGatedActionService creates a gated action service.
func NewGatedActionService(logger *slog.Logger, approvals persistence.ApprovalRepository) *GatedActionService {
	return &GatedActionService{
		approvals: approvals,
		logger:    logger.With("module", "enforcement"),
	}
}

// CheckApprovalStatus reports whether the action on the incident may proceed.
func (s *GatedActionService) CheckApprovalStatus(
	ctx context.Context,
	policy *models.DriftPolicy,
	incidentID string,
	action models.IncidentActionType,
) (*ActionDecision, error) {
	if !policy.RequiresApproval(action) {
		return &ActionDecision{Allowed: true, Status: ApprovalNotRequired}, nil
	}

	approvals, err := s.approvals.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	var pending, rejected *models.ApprovalRequest

	for _, approval := range approvals {
		if approval.Override || approval.ActionType != action {
			continue
		}

		switch approval.State {
		case models.ApprovalStateApproved:
			return &ActionDecision{Allowed: true, Status: ApprovalRequiredApproved, Approval: approval}, nil
		case models.ApprovalStatePending:
			if pending == nil {
				pending = approval
			}
		case models.ApprovalStateRejected:
			if rejected == nil {
				rejected = approval
			}
		}
	}

	if pending != nil {
		return &ActionDecision{Status: ApprovalRequiredPending, Approval: pending}, nil
	}

	if rejected != nil {
		return &ActionDecision{Status: ApprovalRequiredRejected, Approval: rejected}, nil
	}

	return &ActionDecision{Status: ApprovalRequiredNoReq}, nil
}
