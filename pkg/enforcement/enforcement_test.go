package enforcement

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnforcer(t *testing.T, policies StaticPolicies) (*Enforcer, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	enforcer := NewEnforcer(testLogger(), policies, p.IncidentRepository(), p.ApprovalRepository())

	return enforcer, p
}

func seedIncident(t *testing.T, p *file.Persistence, incident *models.DriftIncident) {
	t.Helper()

	require.NoError(t, p.IncidentRepository().Save(t.Context(), incident))
}

func TestCheckEnforcement_NoPolicyAllows(t *testing.T) {
	enforcer, p := newTestEnforcer(t, StaticPolicies{})

	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-1", EnvironmentID: "staging",
		Status: models.DriftStatusDetected, DetectedAt: time.Now().UTC(),
	})

	decision := enforcer.CheckEnforcement(t.Context(), "tenant-1", "staging")
	assert.True(t, decision.Allowed)
	assert.Equal(t, ResultAllowed, decision.Result)
	assert.False(t, decision.FailOpen)
}

func TestCheckEnforcement_ActiveDriftBlocks(t *testing.T) {
	policies := StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", BlockDeploymentsOnDrift: true},
	}
	enforcer, p := newTestEnforcer(t, policies)

	now := time.Now().UTC()
	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-old", EnvironmentID: "staging",
		Status: models.DriftStatusAcknowledged, DetectedAt: now.Add(-time.Hour),
	})
	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-new", EnvironmentID: "staging",
		Status: models.DriftStatusDetected, DetectedAt: now,
	})

	decision := enforcer.CheckEnforcement(t.Context(), "tenant-1", "staging")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ResultBlockedDrift, decision.Result)
	require.NotNil(t, decision.Incident)
	assert.Equal(t, "inc-new", decision.Incident.ID)
}

func TestCheckEnforcement_NoExpiryNeverExpires(t *testing.T) {
	// An incident without expires_at can never trip the expiry check, but it
	// still blocks as active drift.
	policies := StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", BlockDeploymentsOnDrift: true, BlockDeploymentsOnExpired: true},
	}
	enforcer, p := newTestEnforcer(t, policies)

	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-1", EnvironmentID: "staging",
		Status: models.DriftStatusDetected, DetectedAt: time.Now().UTC(),
	})

	decision := enforcer.CheckEnforcement(t.Context(), "tenant-1", "staging")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ResultBlockedDrift, decision.Result)
}

func TestCheckEnforcement_ExpiredTakesPrecedence(t *testing.T) {
	policies := StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", BlockDeploymentsOnDrift: true, BlockDeploymentsOnExpired: true},
	}
	enforcer, p := newTestEnforcer(t, policies)

	now := time.Now().UTC()
	expired := now.Add(-time.Hour)
	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-expired", EnvironmentID: "staging",
		Status: models.DriftStatusAcknowledged, DetectedAt: now.Add(-2 * time.Hour),
		ExpiresAt: &expired,
	})
	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-fresh", EnvironmentID: "staging",
		Status: models.DriftStatusDetected, DetectedAt: now,
	})

	decision := enforcer.CheckEnforcement(t.Context(), "tenant-1", "staging")
	assert.False(t, decision.Allowed)
	assert.Equal(t, ResultBlockedTTLExpired, decision.Result)
	require.NotNil(t, decision.Incident)
	assert.Equal(t, "inc-expired", decision.Incident.ID)
}

func TestCheckEnforcement_ClosedIncidentsIgnored(t *testing.T) {
	policies := StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", BlockDeploymentsOnDrift: true},
	}
	enforcer, p := newTestEnforcer(t, policies)

	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-closed", EnvironmentID: "staging",
		Status: models.DriftStatusClosed, DetectedAt: time.Now().UTC(),
	})

	decision := enforcer.CheckEnforcement(t.Context(), "tenant-1", "staging")
	assert.True(t, decision.Allowed)
}

func TestCheckEnforcementWithOverride(t *testing.T) {
	policies := StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", BlockDeploymentsOnDrift: true},
	}
	enforcer, p := newTestEnforcer(t, policies)

	seedIncident(t, p, &models.DriftIncident{
		ID: "inc-1", EnvironmentID: "staging",
		Status: models.DriftStatusDetected, DetectedAt: time.Now().UTC(),
	})

	// A pending override does not unblock.
	pending := &models.ApprovalRequest{
		ID: "ap-pending", TenantID: "tenant-1", IncidentID: "inc-1",
		Override: true, State: models.ApprovalStatePending,
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, p.ApprovalRepository().Save(t.Context(), pending))

	decision := enforcer.CheckEnforcementWithOverride(t.Context(), "tenant-1", "staging")
	assert.False(t, decision.Allowed)
	assert.Nil(t, decision.Override)

	// An approved override converts the decision to allowed.
	approved := &models.ApprovalRequest{
		ID: "ap-approved", TenantID: "tenant-1", IncidentID: "inc-1",
		Override: true, State: models.ApprovalStateApproved,
		DecidedBy: "carol", RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, p.ApprovalRepository().Save(t.Context(), approved))

	decision = enforcer.CheckEnforcementWithOverride(t.Context(), "tenant-1", "staging")
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Override)
	assert.Equal(t, "ap-approved", decision.Override.ID)
	assert.Equal(t, ResultBlockedDrift, decision.Result)
}

func TestGatedActionService_CheckApprovalStatus(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	service := NewGatedActionService(testLogger(), p.ApprovalRepository())

	policy := &models.DriftPolicy{
		TenantID: "tenant-1",
		ApprovalRequiredActions: map[models.IncidentActionType]bool{
			models.IncidentActionReconcile: true,
		},
	}

	t.Run("nil policy allows", func(t *testing.T) {
		decision, err := service.CheckApprovalStatus(t.Context(), nil, "inc-1", models.IncidentActionReconcile)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, ApprovalNotRequired, decision.Status)
	})

	t.Run("action without requirement allows", func(t *testing.T) {
		decision, err := service.CheckApprovalStatus(t.Context(), policy, "inc-1", models.IncidentActionAcknowledge)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, ApprovalNotRequired, decision.Status)
	})

	t.Run("no request blocks", func(t *testing.T) {
		decision, err := service.CheckApprovalStatus(t.Context(), policy, "inc-1", models.IncidentActionReconcile)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ApprovalRequiredNoReq, decision.Status)
	})

	t.Run("rejected then pending then approved", func(t *testing.T) {
		rejected := &models.ApprovalRequest{
			ID: "ap-1", IncidentID: "inc-1", ActionType: models.IncidentActionReconcile,
			State: models.ApprovalStateRejected, RequestedAt: time.Now().UTC().Add(-2 * time.Hour),
		}
		require.NoError(t, p.ApprovalRepository().Save(t.Context(), rejected))

		decision, err := service.CheckApprovalStatus(t.Context(), policy, "inc-1", models.IncidentActionReconcile)
		require.NoError(t, err)
		assert.Equal(t, ApprovalRequiredRejected, decision.Status)

		pending := &models.ApprovalRequest{
			ID: "ap-2", IncidentID: "inc-1", ActionType: models.IncidentActionReconcile,
			State: models.ApprovalStatePending, RequestedAt: time.Now().UTC().Add(-time.Hour),
		}
		require.NoError(t, p.ApprovalRepository().Save(t.Context(), pending))

		decision, err = service.CheckApprovalStatus(t.Context(), policy, "inc-1", models.IncidentActionReconcile)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ApprovalRequiredPending, decision.Status)

		approved := &models.ApprovalRequest{
			ID: "ap-3", IncidentID: "inc-1", ActionType: models.IncidentActionReconcile,
			State: models.ApprovalStateApproved, RequestedAt: time.Now().UTC(),
		}
		require.NoError(t, p.ApprovalRepository().Save(t.Context(), approved))

		decision, err = service.CheckApprovalStatus(t.Context(), policy, "inc-1", models.IncidentActionReconcile)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, ApprovalRequiredApproved, decision.Status)
		assert.Equal(t, "ap-3", decision.Approval.ID)
	})
}
