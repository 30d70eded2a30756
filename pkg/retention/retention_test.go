package retention

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, tenants map[string]entitlements.Tenant) (*Engine, persistence.RetentionRepository) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	repo := p.RetentionRepository()
	engine := NewEngine(testLogger(), repo, entitlements.NewStaticGate(tenants))

	return engine, repo
}

func seedRecords(t *testing.T, repo persistence.RetentionRepository, kind persistence.RecordKind, tenantID, envID string, count int, age time.Duration) {
	t.Helper()

	base := time.Now().UTC().Add(-age)

	for i := range count {
		ref := persistence.RecordRef{
			ID:            fmt.Sprintf("%s-%s-%d", kind, envID, i),
			TenantID:      tenantID,
			EnvironmentID: envID,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Insert(t.Context(), kind, ref))
	}
}

func TestSweepTenant_SafetyFloorAtThreshold(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	// Exactly at the floor, everything older than the free plan's 7 days.
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-1", "dev", 100, 30*24*time.Hour)

	result, err := engine.SweepTenant(t.Context(), "tenant-1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)

	for _, kind := range result.Kinds {
		if kind.Kind == persistence.RecordKindExecutions {
			assert.True(t, kind.SkippedFloor)
			assert.Equal(t, 100, kind.TotalRecords)
		}
	}

	count, err := repo.CountByTenant(t.Context(), persistence.RecordKindExecutions, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestSweepTenant_FloorBoundsDeletions(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	// 150 records, 60 of them old: only 50 may go, never below the floor.
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-1", "dev", 60, 30*24*time.Hour)
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-1", "staging", 90, time.Hour)

	result, err := engine.SweepTenant(t.Context(), "tenant-1", false)
	require.NoError(t, err)
	assert.Equal(t, 50, result.Deleted)

	count, err := repo.CountByTenant(t.Context(), persistence.RecordKindExecutions, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestSweepTenant_PreservesLatestPerEnvironment(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	// The single dev snapshot is the oldest record of all, so without
	// preservation it would be the first candidate deleted.
	seedRecords(t, repo, persistence.RecordKindSnapshots, "tenant-1", "dev", 1, 90*24*time.Hour)
	seedRecords(t, repo, persistence.RecordKindSnapshots, "tenant-1", "staging", 150, 60*24*time.Hour)

	latestBefore, err := repo.LatestPerEnvironment(t.Context(), persistence.RecordKindSnapshots, "tenant-1")
	require.NoError(t, err)

	result, err := engine.SweepTenant(t.Context(), "tenant-1", false)
	require.NoError(t, err)
	assert.Equal(t, 51, result.Deleted)

	latestAfter, err := repo.LatestPerEnvironment(t.Context(), persistence.RecordKindSnapshots, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, latestBefore["dev"], latestAfter["dev"])
	assert.Equal(t, latestBefore["staging"], latestAfter["staging"])
}

func TestSweepTenant_DryRunDeletesNothing(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-1", "dev", 150, 30*24*time.Hour)

	result, err := engine.SweepTenant(t.Context(), "tenant-1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)

	var executions KindResult

	for _, kind := range result.Kinds {
		if kind.Kind == persistence.RecordKindExecutions {
			executions = kind
		}
	}

	assert.Equal(t, 50, executions.Eligible)

	count, err := repo.CountByTenant(t.Context(), persistence.RecordKindExecutions, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 150, count)
}

func TestSweepTenant_PlanWindow(t *testing.T) {
	tenants := map[string]entitlements.Tenant{
		"tenant-biz": {Plan: entitlements.PlanBusiness},
	}
	engine, repo := newTestEngine(t, tenants)

	// 30-day-old records are inside the business plan's 90-day window.
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-biz", "dev", 150, 30*24*time.Hour)

	result, err := engine.SweepTenant(t.Context(), "tenant-biz", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
}

func TestSweepAll_AggregatesTenants(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-a", "dev", 150, 30*24*time.Hour)
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-b", "dev", 50, 30*24*time.Hour)

	result, err := engine.SweepAll(t.Context(), false)
	require.NoError(t, err)
	assert.Len(t, result.Tenants, 2)
	assert.Equal(t, 50, result.Deleted)
	assert.Empty(t, result.Errors)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestSweepAll_ClearsCheckpointOnCompletion(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-a", "dev", 150, 30*24*time.Hour)

	result, err := engine.SweepAll(t.Context(), false)
	require.NoError(t, err)
	assert.False(t, result.Resumed)

	checkpoint, err := repo.LoadSweepCheckpoint(t.Context())
	require.NoError(t, err)
	assert.Nil(t, checkpoint)
}

func TestSweepAll_ResumesAfterCheckpointedTenant(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-a", "dev", 150, 30*24*time.Hour)
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-b", "dev", 150, 30*24*time.Hour)

	// An interrupted sweep finished tenant-a before dying.
	require.NoError(t, repo.SaveSweepCheckpoint(t.Context(), &persistence.SweepCheckpoint{
		SweepID:    "sweep-1",
		LastTenant: "tenant-a",
		StartedAt:  time.Now().UTC().Add(-time.Minute),
		UpdatedAt:  time.Now().UTC().Add(-time.Minute),
	}))

	result, err := engine.SweepAll(t.Context(), false)
	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, "tenant-b", result.Tenants[0].TenantID)

	// tenant-a's records are untouched by the resumed run.
	count, err := repo.CountByTenant(t.Context(), persistence.RecordKindExecutions, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 150, count)

	checkpoint, err := repo.LoadSweepCheckpoint(t.Context())
	require.NoError(t, err)
	assert.Nil(t, checkpoint)
}

func TestSweepAll_DryRunIgnoresCheckpoint(t *testing.T) {
	engine, repo := newTestEngine(t, nil)

	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-a", "dev", 150, 30*24*time.Hour)
	seedRecords(t, repo, persistence.RecordKindExecutions, "tenant-b", "dev", 150, 30*24*time.Hour)

	require.NoError(t, repo.SaveSweepCheckpoint(t.Context(), &persistence.SweepCheckpoint{
		SweepID:    "sweep-1",
		LastTenant: "tenant-a",
		StartedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	result, err := engine.SweepAll(t.Context(), true)
	require.NoError(t, err)
	assert.False(t, result.Resumed)
	assert.Len(t, result.Tenants, 2)

	// The real sweep's checkpoint survives a dry run.
	checkpoint, err := repo.LoadSweepCheckpoint(t.Context())
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, "sweep-1", checkpoint.SweepID)
}
