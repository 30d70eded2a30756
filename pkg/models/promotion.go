package models

import "time"

// PromotionStatus represents the lifecycle state of a promotion or rollback.
type PromotionStatus string

const (
	PromotionStatusPending          PromotionStatus = "pending"
	PromotionStatusCreatingSnapshot PromotionStatus = "creating_snapshot"
	PromotionStatusPendingApproval  PromotionStatus = "pending_approval"
	PromotionStatusApproved         PromotionStatus = "approved"
	PromotionStatusDeploying        PromotionStatus = "deploying"
	PromotionStatusVerifying        PromotionStatus = "verifying"
	PromotionStatusUpdatingPointer  PromotionStatus = "updating_pointer"
	PromotionStatusCompleted        PromotionStatus = "completed"
	PromotionStatusFailed           PromotionStatus = "failed"
	PromotionStatusRejected         PromotionStatus = "rejected"
)

// promotionTransitions is the closed transition table for PromotionStatus.
// FAILED and REJECTED are reachable from every non-terminal state.
var promotionTransitions = map[PromotionStatus][]PromotionStatus{
	PromotionStatusPending:          {PromotionStatusCreatingSnapshot},
	PromotionStatusCreatingSnapshot: {PromotionStatusPendingApproval, PromotionStatusDeploying},
	PromotionStatusPendingApproval:  {PromotionStatusApproved},
	PromotionStatusApproved:         {PromotionStatusDeploying},
	PromotionStatusDeploying:        {PromotionStatusVerifying},
	PromotionStatusVerifying:        {PromotionStatusUpdatingPointer},
	PromotionStatusUpdatingPointer:  {PromotionStatusCompleted},
}

// IsTerminal reports whether no further transitions are allowed.
func (s PromotionStatus) IsTerminal() bool {
	switch s {
	case PromotionStatusCompleted, PromotionStatusFailed, PromotionStatusRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a valid transition.
func (s PromotionStatus) CanTransition(next PromotionStatus) bool {
	if s.IsTerminal() {
		return false
	}

	if next == PromotionStatusFailed || next == PromotionStatusRejected {
		return true
	}

	for _, allowed := range promotionTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// PromotionRecord tracks one promotion or rollback operation end-to-end for
// audit and resumability. At most one non-terminal record may exist per
// (tenant, target environment) pair.
type PromotionRecord struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"     validate:"required"`
	SourceEnvID      string          `json:"source_env_id"`
	TargetEnvID      string          `json:"target_env_id" validate:"required"`
	Status           PromotionStatus `json:"status"        validate:"required"`
	SnapshotID       string          `json:"snapshot_id"`
	CommitSHA        string          `json:"commit_sha"`
	SourceSnapshotID string          `json:"source_snapshot_id,omitempty"`
	WorkflowsCount   int             `json:"workflows_count"`
	CreatedBy        string          `json:"created_by"`
	Reason           string          `json:"reason"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Rollback         bool            `json:"rollback"` // True when this record tracks a rollback
}

// RollbackResult reports the compensating action taken after a partial
// promotion failure.
type RollbackResult struct {
	RollbackTriggered   bool     `json:"rollback_triggered"`
	RollbackMethod      string   `json:"rollback_method,omitempty"`
	PreDeploySnapshotID string   `json:"pre_deploy_snapshot_id,omitempty"`
	Deleted             int      `json:"deleted"`
	Errors              []string `json:"errors,omitempty"`
}
