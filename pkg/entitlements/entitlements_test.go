package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRetentionDays(t *testing.T) {
	assert.Equal(t, 7, PlanFree.RetentionDays())
	assert.Equal(t, 30, PlanTeam.RetentionDays())
	assert.Equal(t, 90, PlanBusiness.RetentionDays())
	assert.Equal(t, 365, PlanEnterprise.RetentionDays())
	assert.Equal(t, 7, Plan("unknown").RetentionDays())
}

func TestStaticGate_CanAddEnvironment(t *testing.T) {
	gate := NewStaticGate(map[string]Tenant{
		"tenant-full": {Plan: PlanFree, EnvironmentCount: 2},
		"tenant-ok":   {Plan: PlanTeam, EnvironmentCount: 3},
	})

	quota, err := gate.CanAddEnvironment(t.Context(), "tenant-full")
	require.NoError(t, err)
	assert.False(t, quota.Allowed)
	assert.Equal(t, 2, quota.Current)
	assert.Equal(t, 2, quota.Max)
	assert.NotEmpty(t, quota.Reason)

	quota, err = gate.CanAddEnvironment(t.Context(), "tenant-ok")
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
	assert.Equal(t, 5, quota.Max)
}

func TestStaticGate_UnknownTenantDefaultsToFree(t *testing.T) {
	gate := NewStaticGate(nil)

	days, err := gate.RetentionDays(t.Context(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, 7, days)

	enabled, err := gate.HasFlag(t.Context(), "anyone", "extended_retention")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestStaticGate_ExtendedRetentionFlagOverridesPlan(t *testing.T) {
	gate := NewStaticGate(map[string]Tenant{
		"tenant-flagged": {Plan: PlanFree, Flags: map[string]bool{FlagExtendedRetention: true}},
		"tenant-plain":   {Plan: PlanTeam},
	})

	days, err := gate.RetentionDays(t.Context(), "tenant-flagged")
	require.NoError(t, err)
	assert.Equal(t, 365, days)

	days, err = gate.RetentionDays(t.Context(), "tenant-plain")
	require.NoError(t, err)
	assert.Equal(t, 30, days)
}
