// Package enforcement decides whether deployments and incident actions may
// proceed given a tenant's drift policy and any active drift incidents.
// Policy and incident load failures degrade to allow: an internal monitoring
// failure must never itself block a legitimate operation.
package enforcement

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

// EnforcementResult names the outcome of a deployment enforcement check.
type EnforcementResult string

const (
	ResultAllowed           EnforcementResult = "ALLOWED"
	ResultBlockedTTLExpired EnforcementResult = "BLOCKED_TTL_EXPIRED"
	ResultBlockedDrift      EnforcementResult = "BLOCKED_ACTIVE_DRIFT"
)

// Decision is the outcome of one enforcement check.
type Decision struct {
	Allowed  bool
	Result   EnforcementResult
	Incident *models.DriftIncident // The blocking incident, when blocked
	FailOpen bool                  // True when an infrastructure error degraded to allow
	Override *models.ApprovalRequest
}

// PolicyLoader resolves the drift policy for a tenant. A nil policy with a
// nil error means the tenant has no policy configured.
type PolicyLoader interface {
	PolicyByTenant(ctx context.Context, tenantID string) (*models.DriftPolicy, error)
}

// StaticPolicies is a PolicyLoader backed by an in-memory map.
type StaticPolicies map[string]*models.DriftPolicy

func (p StaticPolicies) PolicyByTenant(_ context.Context, tenantID string) (*models.DriftPolicy, error) {
	return p[tenantID], nil
}

// Enforcer evaluates drift policies against active incidents.
type Enforcer struct {
	policies  PolicyLoader
	incidents persistence.IncidentRepository
	approvals persistence.ApprovalRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewEnforcer creates a drift policy enforcer.
func NewEnforcer(
	logger *slog.Logger,
	policies PolicyLoader,
	incidents persistence.IncidentRepository,
	approvals persistence.ApprovalRepository,
) *Enforcer {
	return &Enforcer{
		policies:  policies,
		incidents: incidents,
		approvals: approvals,
		logger:    logger.With("module", "enforcement"),
		now:       time.Now,
	}
}

// CheckEnforcement decides whether a deployment into the environment may
// proceed. TTL expiry takes precedence over generic active drift: an expired
// incident is reported as BLOCKED_TTL_EXPIRED even when both policy switches
// are on.
func (e *Enforcer) CheckEnforcement(ctx context.Context, tenantID, environmentID string) *Decision {
	policy, err := e.policies.PolicyByTenant(ctx, tenantID)
	if err != nil {
		e.logger.WarnContext(ctx, "Drift policy load failed, allowing",
			"tenant_id", tenantID, "error", err)

		return &Decision{Allowed: true, Result: ResultAllowed, FailOpen: true}
	}

	if policy == nil {
		return &Decision{Allowed: true, Result: ResultAllowed}
	}

	incidents, err := e.incidents.ActiveByEnvironment(ctx, environmentID)
	if err != nil {
		e.logger.WarnContext(ctx, "Active incident load failed, allowing",
			"environment_id", environmentID, "error", err)

		return &Decision{Allowed: true, Result: ResultAllowed, FailOpen: true}
	}

	if policy.BlockDeploymentsOnExpired {
		now := e.now()
		for _, incident := range incidents {
			if incident.Expired(now) {
				return &Decision{Result: ResultBlockedTTLExpired, Incident: incident}
			}
		}
	}

	if policy.BlockDeploymentsOnDrift && len(incidents) > 0 {
		// ActiveByEnvironment orders by detection time descending, so the
		// first entry is the most recently detected incident.
		return &Decision{Result: ResultBlockedDrift, Incident: incidents[0]}
	}

	return &Decision{Allowed: true, Result: ResultAllowed}
}

// CheckEnforcementWithOverride runs CheckEnforcement and, when blocked,
// converts the decision to allowed if an approved override approval exists
// for the blocking incident. Pending requests do not override.
func (e *Enforcer) CheckEnforcementWithOverride(ctx context.Context, tenantID, environmentID string) *Decision {
	decision := e.CheckEnforcement(ctx, tenantID, environmentID)
	if decision.Allowed || decision.Incident == nil {
		return decision
	}

	approvals, err := e.approvals.ListByIncident(ctx, decision.Incident.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "Override approval lookup failed",
			"incident_id", decision.Incident.ID, "error", err)

		return decision
	}

	for _, approval := range approvals {
		if approval.Override && approval.State == models.ApprovalStateApproved {
			e.logger.InfoContext(ctx, "Blocked deployment overridden by approval",
				"incident_id", decision.Incident.ID,
				"approval_id", approval.ID,
				"decided_by", approval.DecidedBy)

			decision.Allowed = true
			decision.Override = approval

			return decision
		}
	}

	return decision
}
