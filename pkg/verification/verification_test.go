package verification

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/mocks"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func definition(name string) map[string]any {
	return map[string]any{
		"name":  name,
		"nodes": []any{map[string]any{"type": "webhook"}},
	}
}

func TestVerifyDeployment_AllMatch(t *testing.T) {
	engine := NewEngine(slog.Default())
	rt := testutil.NewFakeRuntime()
	rt.Seed("rt-1", definition("One"))
	rt.Seed("rt-2", definition("Two"))

	result, err := engine.VerifyDeployment(t.Context(), rt,
		map[string]map[string]any{"wf-1": definition("One"), "wf-2": definition("Two")},
		map[string]string{"wf-1": "rt-1", "wf-2": "rt-2"},
	)
	require.NoError(t, err)

	assert.True(t, result.Matches)
	assert.Equal(t, 2, result.Checked)
	assert.Empty(t, result.Mismatches)
}

func TestVerifyDeployment_ReportsMismatch(t *testing.T) {
	engine := NewEngine(slog.Default())
	rt := testutil.NewFakeRuntime()
	rt.Seed("rt-1", definition("Changed behind our back"))

	result, err := engine.VerifyDeployment(t.Context(), rt,
		map[string]map[string]any{"wf-1": definition("One")},
		map[string]string{"wf-1": "rt-1"},
	)
	require.NoError(t, err)

	assert.False(t, result.Matches)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, "wf-1", result.Mismatches[0].Key)
	assert.NotEmpty(t, result.Mismatches[0].ObservedHash)
}

func TestVerifyDeployment_MissingRuntimeWorkflow(t *testing.T) {
	engine := NewEngine(slog.Default())
	rt := testutil.NewFakeRuntime()

	result, err := engine.VerifyDeployment(t.Context(), rt,
		map[string]map[string]any{"wf-1": definition("One")},
		map[string]string{"wf-1": "rt-gone"},
	)
	require.NoError(t, err)

	assert.False(t, result.Matches)
	require.Len(t, result.Mismatches, 1)
	assert.NotEmpty(t, result.Mismatches[0].Detail)
}

func TestDetectDrift_DevelopmentHasNoDrift(t *testing.T) {
	engine := NewEngine(slog.Default())
	rt := testutil.NewFakeRuntime()

	entries, err := engine.DetectDrift(t.Context(),
		&models.Environment{ID: "dev", Class: models.EnvironmentClassDevelopment},
		rt, []*models.WorkflowEnvironmentMapping{{Status: models.MappingStatusLinked, RuntimeWorkflowID: "rt-1"}})
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestDetectDrift_ReportsDivergedAndMissing(t *testing.T) {
	engine := NewEngine(slog.Default())
	rt := testutil.NewFakeRuntime()
	rt.Seed("rt-1", definition("Edited live"))
	rt.Seed("rt-2", definition("Untouched"))

	untouchedHash, err := fingerprint.HashRaw(definition("Untouched"))
	require.NoError(t, err)

	gitHash, err := fingerprint.HashRaw(definition("As committed"))
	require.NoError(t, err)

	mappings := []*models.WorkflowEnvironmentMapping{
		{CanonicalID: "c-1", RuntimeWorkflowID: "rt-1", Status: models.MappingStatusLinked, EnvContentHash: gitHash},
		{CanonicalID: "c-2", RuntimeWorkflowID: "rt-2", Status: models.MappingStatusLinked, EnvContentHash: untouchedHash},
		{CanonicalID: "c-3", RuntimeWorkflowID: "rt-gone", Status: models.MappingStatusLinked, EnvContentHash: gitHash},
		{CanonicalID: "c-4", RuntimeWorkflowID: "rt-untracked", Status: models.MappingStatusUntracked},
	}

	entries, err := engine.DetectDrift(t.Context(),
		&models.Environment{ID: "staging", Class: models.EnvironmentClassStaging}, rt, mappings)
	require.NoError(t, err)

	// c-1 drifted, c-2 in sync, c-3 missing, c-4 not linked so not checked.
	require.Len(t, entries, 2)
	assert.Equal(t, "c-1", entries[0].CanonicalID)
	assert.False(t, entries[0].Missing)
	assert.Equal(t, "c-3", entries[1].CanonicalID)
	assert.True(t, entries[1].Missing)
}

func TestDetectDrift_RuntimeErrorAborts(t *testing.T) {
	engine := NewEngine(slog.Default())

	adapter := &mocks.MockRuntimeAdapter{}
	adapter.On("GetWorkflow", mock.Anything, "rt-1").Return(nil, errors.New("runtime unreachable"))

	mappings := []*models.WorkflowEnvironmentMapping{
		{CanonicalID: "c-1", RuntimeWorkflowID: "rt-1", Status: models.MappingStatusLinked, EnvContentHash: "abc"},
	}

	_, err := engine.DetectDrift(t.Context(),
		&models.Environment{ID: "staging", Class: models.EnvironmentClassStaging}, adapter, mappings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rt-1")
	adapter.AssertExpectations(t)
}
