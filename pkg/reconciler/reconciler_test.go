package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/testutil"
	"github.com/dukex/promion/pkg/verification"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type reconcilerFixture struct {
	engine      *Engine
	persistence *file.Persistence
	runtime     *testutil.FakeRuntime
	env         *models.Environment
}

func newReconcilerFixture(t *testing.T, policies enforcement.StaticPolicies) *reconcilerFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	rt := testutil.NewFakeRuntime()
	env := &models.Environment{
		ID:        "env-stg",
		TenantID:  "tenant-1",
		Name:      "Staging",
		Class:     models.EnvironmentClassStaging,
		Provider:  "n8n",
		GitFolder: "staging",
	}

	engine := NewEngine(
		testLogger(),
		verification.NewEngine(testLogger()),
		p.IncidentRepository(),
		p.MappingRepository(),
		policies,
		nil,
	)

	return &reconcilerFixture{engine: engine, persistence: p, runtime: rt, env: env}
}

func (f *reconcilerFixture) targets() StaticTargets {
	return StaticTargets{{Environment: f.env, Adapter: f.runtime}}
}

// linkWorkflow seeds the runtime with a definition and records a linked
// mapping whose hash matches it, i.e. an in-sync workflow.
func (f *reconcilerFixture) linkWorkflow(t *testing.T, canonicalID, runtimeID string, def map[string]any) {
	t.Helper()

	f.runtime.Seed(runtimeID, def)

	hash, err := fingerprint.HashRaw(def)
	require.NoError(t, err)

	err = f.persistence.MappingRepository().Save(t.Context(), &models.WorkflowEnvironmentMapping{
		CanonicalID:       canonicalID,
		EnvironmentID:     f.env.ID,
		RuntimeWorkflowID: runtimeID,
		WorkflowName:      canonicalID,
		Status:            models.MappingStatusLinked,
		EnvContentHash:    hash,
		LastSeenAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
}

func (f *reconcilerFixture) activeIncidents(t *testing.T) []*models.DriftIncident {
	t.Helper()

	active, err := f.persistence.IncidentRepository().ActiveByEnvironment(t.Context(), f.env.ID)
	require.NoError(t, err)

	return active
}

func workflowDef(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"nodes":       []any{map[string]any{"name": "start", "type": "trigger"}},
		"connections": map[string]any{},
	}
}

func TestInSyncEnvironmentOpensNoIncident(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))
	fixture.linkWorkflow(t, "wf-beta", "rt-b", workflowDef("beta"))

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	require.Len(t, report.Environments, 1)
	assert.Equal(t, 0, report.Environments[0].DriftWorkflows)
	assert.False(t, report.Environments[0].IncidentOpened)
	assert.Empty(t, fixture.activeIncidents(t))
}

func TestDriftOpensIncidentWithPolicyTTL(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{
		"tenant-1": {TenantID: "tenant-1", DefaultTTL: 48 * time.Hour},
	})
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))
	fixture.linkWorkflow(t, "wf-beta", "rt-b", workflowDef("beta"))

	// Someone edits alpha directly in the runtime.
	edited := workflowDef("alpha")
	edited["nodes"] = []any{map[string]any{"name": "start", "type": "webhook"}}
	fixture.runtime.Seed("rt-a", edited)

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	require.Len(t, report.Environments, 1)
	assert.Equal(t, 1, report.Environments[0].DriftWorkflows)
	assert.True(t, report.Environments[0].IncidentOpened)

	active := fixture.activeIncidents(t)
	require.Len(t, active, 1)

	incident := active[0]
	assert.Equal(t, models.DriftStatusDetected, incident.Status)
	assert.Equal(t, "tenant-1", incident.TenantID)
	assert.Equal(t, []string{"wf-alpha"}, incident.AffectedWorkflows)
	require.NotNil(t, incident.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), *incident.ExpiresAt, time.Minute)
}

func TestSecondPassRefreshesExistingIncident(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))
	fixture.linkWorkflow(t, "wf-beta", "rt-b", workflowDef("beta"))
	fixture.linkWorkflow(t, "wf-gamma", "rt-c", workflowDef("gamma"))

	edited := workflowDef("alpha")
	edited["active"] = true
	fixture.runtime.Seed("rt-a", edited)

	_, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	first := fixture.activeIncidents(t)
	require.Len(t, first, 1)

	// The drift spreads to a second workflow before the next pass.
	editedBeta := workflowDef("beta")
	editedBeta["active"] = true
	fixture.runtime.Seed("rt-b", editedBeta)

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	require.Len(t, report.Environments, 1)
	assert.False(t, report.Environments[0].IncidentOpened)
	assert.True(t, report.Environments[0].IncidentUpdated)

	active := fixture.activeIncidents(t)
	require.Len(t, active, 1)
	assert.Equal(t, first[0].ID, active[0].ID)
	assert.ElementsMatch(t, []string{"wf-alpha", "wf-beta"}, active[0].AffectedWorkflows)
}

func TestBackInSyncClosesIncident(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})

	def := workflowDef("alpha")
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", def)

	edited := workflowDef("alpha")
	edited["active"] = true
	fixture.runtime.Seed("rt-a", edited)

	_, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	opened := fixture.activeIncidents(t)
	require.Len(t, opened, 1)

	// The runtime content is restored to what Git records.
	fixture.runtime.Seed("rt-a", def)

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	require.Len(t, report.Environments, 1)
	assert.True(t, report.Environments[0].IncidentClosed)
	assert.Empty(t, fixture.activeIncidents(t))

	closed, err := fixture.persistence.IncidentRepository().GetByID(t.Context(), opened[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DriftStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
}

func TestMissingRuntimeWorkflowMarksMappingMissing(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))

	require.NoError(t, fixture.runtime.DeleteWorkflow(t.Context(), "rt-a"))

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	require.Len(t, report.Environments, 1)
	assert.Equal(t, 1, report.Environments[0].DriftWorkflows)

	mapping, err := fixture.persistence.MappingRepository().GetByRuntimeID(t.Context(), fixture.env.ID, "rt-a")
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusMissing, mapping.Status)

	active := fixture.activeIncidents(t)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"wf-alpha"}, active[0].AffectedWorkflows)
}

func TestDevelopmentEnvironmentsAreSkipped(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})
	fixture.env.Class = models.EnvironmentClassDevelopment
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))

	// Runtime edits in a development environment are not drift.
	edited := workflowDef("alpha")
	edited["active"] = true
	fixture.runtime.Seed("rt-a", edited)

	report, err := fixture.engine.ReconcileAll(t.Context(), fixture.targets())
	require.NoError(t, err)

	assert.Empty(t, report.Environments)
	assert.Empty(t, fixture.activeIncidents(t))
}

func TestSeverityScalesWithDriftShare(t *testing.T) {
	tests := []struct {
		name     string
		drifting int
		tracked  int
		want     models.DriftSeverity
	}{
		{"single workflow", 1, 10, models.DriftSeverityLow},
		{"a few workflows", 3, 10, models.DriftSeverityMedium},
		{"many workflows", 6, 20, models.DriftSeverityHigh},
		{"half the environment", 5, 10, models.DriftSeverityCritical},
		{"everything drifting", 3, 3, models.DriftSeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, severityFor(tt.drifting, tt.tracked))
		})
	}
}

// failingAdapter wraps an adapter and fails every workflow fetch with an
// error drift detection cannot classify as not-found.
type failingAdapter struct {
	runtime.Adapter
}

func (failingAdapter) GetWorkflow(_ context.Context, _ string) (map[string]any, error) {
	return nil, errors.New("runtime unreachable")
}

func TestReconcileAllCollectsPerEnvironmentErrors(t *testing.T) {
	fixture := newReconcilerFixture(t, enforcement.StaticPolicies{})
	fixture.linkWorkflow(t, "wf-alpha", "rt-a", workflowDef("alpha"))

	broken := &models.Environment{
		ID:        "env-broken",
		TenantID:  "tenant-1",
		Name:      "Broken",
		Class:     models.EnvironmentClassStaging,
		GitFolder: "broken",
	}
	targets := StaticTargets{
		{Environment: broken, Adapter: failingAdapter{fixture.runtime}},
		{Environment: fixture.env, Adapter: fixture.runtime},
	}

	// Seed a linked mapping for the broken environment so drift detection
	// actually calls its adapter.
	err := fixture.persistence.MappingRepository().Save(t.Context(), &models.WorkflowEnvironmentMapping{
		CanonicalID:       "wf-x",
		EnvironmentID:     broken.ID,
		RuntimeWorkflowID: "rt-x",
		Status:            models.MappingStatusLinked,
		EnvContentHash:    "abc",
		LastSeenAt:        time.Now().UTC(),
	})
	require.NoError(t, err)

	report, err := fixture.engine.ReconcileAll(t.Context(), targets)
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "env-broken")
	require.Len(t, report.Environments, 1)
	assert.Equal(t, fixture.env.ID, report.Environments[0].EnvironmentID)
}
