package models

import "time"

// DriftIncidentStatus is the lifecycle state of a drift incident.
type DriftIncidentStatus string

const (
	DriftStatusDetected     DriftIncidentStatus = "detected"
	DriftStatusAcknowledged DriftIncidentStatus = "acknowledged"
	DriftStatusStabilized   DriftIncidentStatus = "stabilized"
	DriftStatusReconciled   DriftIncidentStatus = "reconciled"
	DriftStatusClosed       DriftIncidentStatus = "closed"
)

// driftTransitions is the closed transition table for incident statuses.
var driftTransitions = map[DriftIncidentStatus][]DriftIncidentStatus{
	DriftStatusDetected:     {DriftStatusAcknowledged, DriftStatusClosed},
	DriftStatusAcknowledged: {DriftStatusStabilized, DriftStatusReconciled, DriftStatusClosed},
	DriftStatusStabilized:   {DriftStatusReconciled, DriftStatusClosed},
	DriftStatusReconciled:   {DriftStatusClosed},
}

// CanTransition reports whether moving from s to next is valid.
func (s DriftIncidentStatus) CanTransition(next DriftIncidentStatus) bool {
	for _, allowed := range driftTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// IsClosed reports whether the incident no longer counts as active.
func (s DriftIncidentStatus) IsClosed() bool {
	return s == DriftStatusClosed
}

// DriftSeverity grades how far an environment has diverged.
type DriftSeverity string

const (
	DriftSeverityLow      DriftSeverity = "low"
	DriftSeverityMedium   DriftSeverity = "medium"
	DriftSeverityHigh     DriftSeverity = "high"
	DriftSeverityCritical DriftSeverity = "critical"
)

// DriftIncident represents a detected divergence between Git and the live
// runtime for a non-development environment. At most one non-closed incident
// exists per environment. TTL expiry is a policy signal consumed by the
// enforcement layer; it never changes the incident status by itself.
type DriftIncident struct {
	ID                string              `json:"id"`
	TenantID          string              `json:"tenant_id"`
	EnvironmentID     string              `json:"environment_id" validate:"required"`
	Status            DriftIncidentStatus `json:"status"         validate:"required"`
	Severity          DriftSeverity       `json:"severity"`
	AffectedWorkflows []string            `json:"affected_workflows"`
	OwnerUserID       string              `json:"owner_user_id,omitempty"`
	DetectedAt        time.Time           `json:"detected_at"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
}

// Active reports whether the incident still influences enforcement.
func (i *DriftIncident) Active() bool {
	return !i.Status.IsClosed()
}

// Expired reports whether the incident's TTL has passed at the given instant.
// Incidents without an expiry can never expire.
func (i *DriftIncident) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// IncidentActionType names the gated actions an operator can take on an
// incident.
type IncidentActionType string

const (
	IncidentActionAcknowledge IncidentActionType = "acknowledge"
	IncidentActionExtendTTL   IncidentActionType = "extend_ttl"
	IncidentActionReconcile   IncidentActionType = "reconcile"
)

// DriftPolicy is a tenant's drift enforcement configuration.
type DriftPolicy struct {
	TenantID                  string                      `json:"tenant_id"`
	BlockDeploymentsOnDrift   bool                        `json:"block_deployments_on_drift"`
	BlockDeploymentsOnExpired bool                        `json:"block_deployments_on_expired"`
	ApprovalRequiredActions   map[IncidentActionType]bool `json:"approval_required_actions,omitempty"`
	DefaultTTL                time.Duration               `json:"default_ttl,omitempty"`
}

// RequiresApproval reports whether the given action on an incident needs an
// approved request first.
func (p *DriftPolicy) RequiresApproval(action IncidentActionType) bool {
	if p == nil {
		return false
	}

	return p.ApprovalRequiredActions[action]
}

// ApprovalState is the lifecycle state of an approval request.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "pending"
	ApprovalStateApproved ApprovalState = "approved"
	ApprovalStateRejected ApprovalState = "rejected"
)

// ApprovalRequest is a human approval record scoped to an incident and an
// action type, or to a blocked deployment override.
type ApprovalRequest struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenant_id"`
	IncidentID  string             `json:"incident_id"`
	ActionType  IncidentActionType `json:"action_type,omitempty"`
	Override    bool               `json:"override"` // True for deployment override approvals
	State       ApprovalState      `json:"state"`
	RequestedBy string             `json:"requested_by"`
	DecidedBy   string             `json:"decided_by,omitempty"`
	RequestedAt time.Time          `json:"requested_at"`
	DecidedAt   *time.Time         `json:"decided_at,omitempty"`
}
