package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

// Incidents governs drift incident remediation: the acknowledge, extend_ttl,
// and reconcile actions, each gated by the tenant's approval policy.
type Incidents struct {
	incidents persistence.IncidentRepository
	approvals persistence.ApprovalRepository
	policies  enforcement.PolicyLoader
	gate      *enforcement.GatedActionService
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewIncidents creates an incident action service.
func NewIncidents(
	logger *slog.Logger,
	incidents persistence.IncidentRepository,
	approvals persistence.ApprovalRepository,
	policies enforcement.PolicyLoader,
) *Incidents {
	return &Incidents{
		incidents: incidents,
		approvals: approvals,
		policies:  policies,
		gate:      enforcement.NewGatedActionService(logger, approvals),
		validate:  validator.New(),
		logger:    logger.With("module", "services"),
		now:       time.Now,
	}
}

// ActionRequest applies one gated action to an incident.
type ActionRequest struct {
	TenantID   string                    `validate:"required"`
	IncidentID string                    `validate:"required"`
	Action     models.IncidentActionType `validate:"required,oneof=acknowledge extend_ttl reconcile"`
	ActorID    string                    `validate:"required"`
	ExtendBy   time.Duration             `validate:"-"` // extend_ttl only
}

// Apply performs the action when the approval gate allows it. A blocked
// action reports the approval status so callers know whether to request,
// wait, or give up.
func (s *Incidents) Apply(ctx context.Context, req ActionRequest) *IncidentResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &IncidentResult{Kind: ResultValidationError, Issues: issues}
	}

	incident, result := s.loadIncident(ctx, req.TenantID, req.IncidentID)
	if result != nil {
		return result
	}

	policy, err := s.policies.PolicyByTenant(ctx, req.TenantID)
	if err != nil {
		// Fail-open like the enforcer: a policy load failure never blocks
		// remediation.
		s.logger.WarnContext(ctx, "Failed to load drift policy, allowing action",
			"tenant_id", req.TenantID, "error", err)

		policy = nil
	}

	decision, err := s.gate.CheckApprovalStatus(ctx, policy, req.IncidentID, req.Action)
	if err != nil {
		return s.internal(ctx, "check approval status", err)
	}

	if !decision.Allowed {
		return &IncidentResult{
			Kind:     ResultForbidden,
			Incident: incident,
			Approval: decision.Approval,
			Status:   decision.Status,
			Issues: []ValidationIssue{{
				Check:       "action_approval",
				Detail:      fmt.Sprintf("action %s requires approval: %s", req.Action, decision.Status),
				Remediation: remediationForStatus(decision.Status),
			}},
		}
	}

	err = s.applyAction(incident, req)
	if err != nil {
		return &IncidentResult{Kind: ResultConflict, Incident: incident, Issues: []ValidationIssue{{
			Check:  "incident_status",
			Detail: err.Error(),
		}}}
	}

	err = s.incidents.Save(ctx, incident)
	if err != nil {
		return s.internal(ctx, "save incident", err)
	}

	return &IncidentResult{Kind: ResultSuccess, Incident: incident, Status: decision.Status}
}

// RequestApproval files a pending approval request for a gated action.
func (s *Incidents) RequestApproval(ctx context.Context, req ActionRequest) *IncidentResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &IncidentResult{Kind: ResultValidationError, Issues: issues}
	}

	incident, result := s.loadIncident(ctx, req.TenantID, req.IncidentID)
	if result != nil {
		return result
	}

	id, err := uuid.NewV7()
	if err != nil {
		return s.internal(ctx, "generate approval id", err)
	}

	approval := &models.ApprovalRequest{
		ID:          id.String(),
		TenantID:    req.TenantID,
		IncidentID:  req.IncidentID,
		ActionType:  req.Action,
		State:       models.ApprovalStatePending,
		RequestedBy: req.ActorID,
		RequestedAt: s.now().UTC(),
	}

	err = s.approvals.Save(ctx, approval)
	if err != nil {
		return s.internal(ctx, "save approval request", err)
	}

	return &IncidentResult{Kind: ResultSuccess, Incident: incident, Approval: approval}
}

// DecideRequest resolves a pending approval request.
type DecideRequest struct {
	TenantID   string `validate:"required"`
	ApprovalID string `validate:"required"`
	DecidedBy  string `validate:"required"`
	Approve    bool   `validate:"-"`
}

// Decide approves or rejects a pending approval request.
func (s *Incidents) Decide(ctx context.Context, req DecideRequest) *IncidentResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &IncidentResult{Kind: ResultValidationError, Issues: issues}
	}

	approval, err := s.approvals.GetByID(ctx, req.ApprovalID)
	if err != nil {
		if errors.Is(err, persistence.ErrApprovalNotFound) {
			return &IncidentResult{Kind: ResultNotFound}
		}

		return s.internal(ctx, "load approval", err)
	}

	if approval.TenantID != req.TenantID {
		return &IncidentResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "approval belongs to a different tenant",
		}}}
	}

	if approval.State != models.ApprovalStatePending {
		return &IncidentResult{Kind: ResultConflict, Approval: approval, Issues: []ValidationIssue{{
			Check:  "approval_state",
			Detail: fmt.Sprintf("approval already %s", approval.State),
		}}}
	}

	decided := s.now().UTC()
	approval.DecidedBy = req.DecidedBy
	approval.DecidedAt = &decided
	approval.State = models.ApprovalStateRejected

	if req.Approve {
		approval.State = models.ApprovalStateApproved
	}

	err = s.approvals.Save(ctx, approval)
	if err != nil {
		return s.internal(ctx, "save approval decision", err)
	}

	return &IncidentResult{Kind: ResultSuccess, Approval: approval}
}

func (s *Incidents) applyAction(incident *models.DriftIncident, req ActionRequest) error {
	switch req.Action {
	case models.IncidentActionAcknowledge:
		if !incident.Status.CanTransition(models.DriftStatusAcknowledged) {
			return fmt.Errorf("cannot acknowledge incident in status %s", incident.Status)
		}

		incident.Status = models.DriftStatusAcknowledged
		incident.OwnerUserID = req.ActorID
	case models.IncidentActionExtendTTL:
		if incident.Status.IsClosed() {
			return errors.New("cannot extend a closed incident")
		}

		extendBy := req.ExtendBy
		if extendBy <= 0 {
			extendBy = 24 * time.Hour
		}

		base := s.now().UTC()
		if incident.ExpiresAt != nil && incident.ExpiresAt.After(base) {
			base = *incident.ExpiresAt
		}

		expires := base.Add(extendBy)
		incident.ExpiresAt = &expires
	case models.IncidentActionReconcile:
		if !incident.Status.CanTransition(models.DriftStatusReconciled) {
			return fmt.Errorf("cannot reconcile incident in status %s", incident.Status)
		}

		incident.Status = models.DriftStatusReconciled
	default:
		return fmt.Errorf("unknown incident action %s", req.Action)
	}

	return nil
}

func (s *Incidents) loadIncident(ctx context.Context, tenantID, incidentID string) (*models.DriftIncident, *IncidentResult) {
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		if persistence.IsIncidentNotFound(err) {
			return nil, &IncidentResult{Kind: ResultNotFound}
		}

		return nil, s.internal(ctx, "load incident", err)
	}

	if incident.TenantID != tenantID {
		return nil, &IncidentResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "incident belongs to a different tenant",
		}}}
	}

	return incident, nil
}

func (s *Incidents) internal(ctx context.Context, op string, err error) *IncidentResult {
	s.logger.ErrorContext(ctx, "Incident service failure", "op", op, "error", err)

	return &IncidentResult{Kind: ResultInternalError, Err: fmt.Errorf("failed to %s: %w", op, err)}
}

func (s *Incidents) validateRequest(req any) []ValidationIssue {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationIssue{{Check: "request", Detail: err.Error()}}
	}

	issues := make([]ValidationIssue, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		issues = append(issues, ValidationIssue{
			Check:  "request",
			Detail: fmt.Sprintf("field %s failed validation rule %s", fieldError.Field(), fieldError.Tag()),
		})
	}

	return issues
}

func remediationForStatus(status enforcement.ApprovalStatus) string {
	switch status {
	case enforcement.ApprovalRequiredNoReq:
		return "Submit an approval request for this action first."
	case enforcement.ApprovalRequiredPending:
		return "An approval request is pending; wait for a decision."
	case enforcement.ApprovalRequiredRejected:
		return "The last approval request was rejected; submit a new one if circumstances changed."
	default:
		return ""
	}
}
