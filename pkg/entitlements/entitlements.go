// Package entitlements exposes the plan/quota checks the promotion core
// consumes. The core never sees billing; it only asks boolean and quota
// questions through the Gate interface.
package entitlements

import "context"

// Plan names a tenant's subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanTeam       Plan = "team"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

// retentionDaysByPlan maps plans to their historical record retention window.
var retentionDaysByPlan = map[Plan]int{
	PlanFree:       7,
	PlanTeam:       30,
	PlanBusiness:   90,
	PlanEnterprise: 365,
}

const defaultRetentionDays = 7

// FlagExtendedRetention grants the enterprise retention window regardless of
// plan. It takes precedence over the plan table.
const FlagExtendedRetention = "extended_retention"

// extendedRetentionDays is the window the extended retention flag grants.
const extendedRetentionDays = 365

// RetentionDays returns the retention window for a plan. Unknown plans fall
// back to the free tier window.
func (p Plan) RetentionDays() int {
	if days, ok := retentionDaysByPlan[p]; ok {
		return days
	}

	return defaultRetentionDays
}

// EnvironmentQuota reports whether a tenant may add another environment.
type EnvironmentQuota struct {
	Allowed bool
	Reason  string
	Current int
	Max     int
}

// Gate is the entitlements surface the promotion core consumes.
type Gate interface {
	CanAddEnvironment(ctx context.Context, tenantID string) (*EnvironmentQuota, error)
	HasFlag(ctx context.Context, tenantID, flag string) (bool, error)
	RetentionDays(ctx context.Context, tenantID string) (int, error)
}

// Tenant holds the plan state a static gate evaluates.
type Tenant struct {
	Plan             Plan
	EnvironmentCount int
	Flags            map[string]bool
}

// maxEnvironmentsByPlan caps how many environments each plan may register.
var maxEnvironmentsByPlan = map[Plan]int{
	PlanFree:       2,
	PlanTeam:       5,
	PlanBusiness:   15,
	PlanEnterprise: 100,
}

// StaticGate is a Gate backed by an in-memory tenant table. Tenants absent
// from the table are treated as free plan with no environments.
type StaticGate struct {
	tenants map[string]Tenant
}

// NewStaticGate creates a gate over a fixed tenant table.
func NewStaticGate(tenants map[string]Tenant) *StaticGate {
	if tenants == nil {
		tenants = make(map[string]Tenant)
	}

	return &StaticGate{tenants: tenants}
}

func (g *StaticGate) tenant(tenantID string) Tenant {
	tenant, ok := g.tenants[tenantID]
	if !ok {
		return Tenant{Plan: PlanFree}
	}

	return tenant
}

// CanAddEnvironment reports whether the tenant is under its environment cap.
func (g *StaticGate) CanAddEnvironment(_ context.Context, tenantID string) (*EnvironmentQuota, error) {
	tenant := g.tenant(tenantID)

	limit, ok := maxEnvironmentsByPlan[tenant.Plan]
	if !ok {
		limit = maxEnvironmentsByPlan[PlanFree]
	}

	quota := &EnvironmentQuota{
		Allowed: tenant.EnvironmentCount < limit,
		Current: tenant.EnvironmentCount,
		Max:     limit,
	}

	if !quota.Allowed {
		quota.Reason = "environment limit reached for plan " + string(tenant.Plan)
	}

	return quota, nil
}

// HasFlag reports whether a feature flag is enabled for the tenant.
func (g *StaticGate) HasFlag(_ context.Context, tenantID, flag string) (bool, error) {
	return g.tenant(tenantID).Flags[flag], nil
}

// RetentionDays resolves the tenant's retention window: the extended
// retention flag wins, then the plan table.
func (g *StaticGate) RetentionDays(ctx context.Context, tenantID string) (int, error) {
	extended, err := g.HasFlag(ctx, tenantID, FlagExtendedRetention)
	if err != nil {
		return 0, err
	}

	if extended {
		return extendedRetentionDays, nil
	}

	return g.tenant(tenantID).Plan.RetentionDays(), nil
}
