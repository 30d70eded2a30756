package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPromotionStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PromotionStatus
		to   PromotionStatus
		want bool
	}{
		{"pending to creating snapshot", PromotionStatusPending, PromotionStatusCreatingSnapshot, true},
		{"creating snapshot to deploying", PromotionStatusCreatingSnapshot, PromotionStatusDeploying, true},
		{"creating snapshot to pending approval", PromotionStatusCreatingSnapshot, PromotionStatusPendingApproval, true},
		{"pending approval to approved", PromotionStatusPendingApproval, PromotionStatusApproved, true},
		{"approved to deploying", PromotionStatusApproved, PromotionStatusDeploying, true},
		{"deploying to verifying", PromotionStatusDeploying, PromotionStatusVerifying, true},
		{"verifying to updating pointer", PromotionStatusVerifying, PromotionStatusUpdatingPointer, true},
		{"updating pointer to completed", PromotionStatusUpdatingPointer, PromotionStatusCompleted, true},
		{"any non-terminal to failed", PromotionStatusDeploying, PromotionStatusFailed, true},
		{"any non-terminal to rejected", PromotionStatusPendingApproval, PromotionStatusRejected, true},
		{"no skipping approval", PromotionStatusPendingApproval, PromotionStatusDeploying, false},
		{"no backwards transition", PromotionStatusVerifying, PromotionStatusDeploying, false},
		{"completed is terminal", PromotionStatusCompleted, PromotionStatusFailed, false},
		{"failed is terminal", PromotionStatusFailed, PromotionStatusPending, false},
		{"rejected is terminal", PromotionStatusRejected, PromotionStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPromotionStatus_IsTerminal(t *testing.T) {
	assert.True(t, PromotionStatusCompleted.IsTerminal())
	assert.True(t, PromotionStatusFailed.IsTerminal())
	assert.True(t, PromotionStatusRejected.IsTerminal())
	assert.False(t, PromotionStatusPending.IsTerminal())
	assert.False(t, PromotionStatusDeploying.IsTerminal())
}

func TestDriftIncidentStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from DriftIncidentStatus
		to   DriftIncidentStatus
		want bool
	}{
		{"detected to acknowledged", DriftStatusDetected, DriftStatusAcknowledged, true},
		{"detected to closed", DriftStatusDetected, DriftStatusClosed, true},
		{"acknowledged to stabilized", DriftStatusAcknowledged, DriftStatusStabilized, true},
		{"acknowledged to reconciled", DriftStatusAcknowledged, DriftStatusReconciled, true},
		{"stabilized to reconciled", DriftStatusStabilized, DriftStatusReconciled, true},
		{"reconciled to closed", DriftStatusReconciled, DriftStatusClosed, true},
		{"detected straight to reconciled", DriftStatusDetected, DriftStatusReconciled, false},
		{"closed is terminal", DriftStatusClosed, DriftStatusDetected, false},
		{"no reopening", DriftStatusReconciled, DriftStatusAcknowledged, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestDriftIncident_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&DriftIncident{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&DriftIncident{ExpiresAt: &future}).Expired(now))

	// An incident without an expiry can never expire.
	assert.False(t, (&DriftIncident{}).Expired(now))
}

func TestEnvironment_RequiresApproval(t *testing.T) {
	assert.True(t, (&Environment{Class: EnvironmentClassProduction}).RequiresApproval())
	assert.False(t, (&Environment{Class: EnvironmentClassStaging}).RequiresApproval())
	assert.False(t, (&Environment{Class: EnvironmentClassDevelopment}).RequiresApproval())
}

func TestEnvironment_TracksDrift(t *testing.T) {
	assert.False(t, (&Environment{Class: EnvironmentClassDevelopment}).TracksDrift())
	assert.True(t, (&Environment{Class: EnvironmentClassStaging}).TracksDrift())
	assert.True(t, (&Environment{Class: EnvironmentClassProduction}).TracksDrift())
}
