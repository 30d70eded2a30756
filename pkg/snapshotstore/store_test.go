package snapshotstore

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/gitrepo/local"
	"github.com/dukex/promion/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	repo, err := local.NewRepository(t.TempDir())
	require.NoError(t, err)

	return NewStore(repo, slog.Default())
}

func testWorkflows() map[string]map[string]any {
	return map[string]map[string]any{
		"wf-1": {"name": "Order sync", "nodes": []any{map[string]any{"type": "webhook"}}},
		"wf-2": {"name": "Invoice export", "nodes": []any{map[string]any{"type": "schedule"}}},
	}
}

func TestStore_CreateSnapshot(t *testing.T) {
	store := newTestStore(t)

	result, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
		Reason:    "promote order flows",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SnapshotID)
	assert.NotEmpty(t, result.CommitSHA)
	assert.Equal(t, 2, result.Manifest.WorkflowsCount)
	assert.NotEmpty(t, result.Manifest.OverallHash)
	assert.Len(t, result.Manifest.Workflows, 2)

	manifest, workflows, err := store.GetSnapshotContent(t.Context(), "staging", result.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, result.SnapshotID, manifest.SnapshotID)
	assert.Equal(t, "Order sync", workflows["wf-1"]["name"])
	assert.Equal(t, "Invoice export", workflows["wf-2"]["name"])
}

func TestStore_CreateSnapshot_Immutability(t *testing.T) {
	store := newTestStore(t)

	first, err := store.createSnapshotWithID(t.Context(), "fixed-id", CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	// A second create at the same id must fail and leave the original alone.
	_, err = store.createSnapshotWithID(t.Context(), "fixed-id", CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: map[string]map[string]any{"wf-9": {"name": "Intruder"}},
		Kind:      models.SnapshotKindManual,
		CreatedBy: "tester",
	})
	require.Error(t, err)
	assert.True(t, IsSnapshotAlreadyExists(err))

	manifest, workflows, err := store.GetSnapshotContent(t.Context(), "staging", "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.OverallHash, manifest.OverallHash)
	assert.NotContains(t, workflows, "wf-9")
}

func TestStore_GetSnapshotContent_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.GetSnapshotContent(t.Context(), "staging", "missing")
	require.Error(t, err)
	assert.True(t, IsSnapshotNotFound(err))
}

func TestStore_GetCurrentSnapshotID_Unonboarded(t *testing.T) {
	store := newTestStore(t)

	id, err := store.GetCurrentSnapshotID(t.Context(), "staging")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStore_UpdateEnvPointer(t *testing.T) {
	store := newTestStore(t)

	result, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	commit, err := store.UpdateEnvPointer(t.Context(), "staging", result.SnapshotID, result.CommitSHA, "tester")
	require.NoError(t, err)
	assert.NotEmpty(t, commit)

	pointer, err := store.GetEnvPointer(t.Context(), "staging")
	require.NoError(t, err)
	assert.Equal(t, result.SnapshotID, pointer.CurrentSnapshotID)
	assert.Equal(t, "tester", pointer.UpdatedBy)
}

func TestStore_UpdateEnvPointer_CrossEnvironmentTarget(t *testing.T) {
	store := newTestStore(t)

	// Snapshot owned by staging, pointer update attempted on prod.
	result, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	_, err = store.UpdateEnvPointer(t.Context(), "prod", result.SnapshotID, result.CommitSHA, "tester")
	require.Error(t, err)
	assert.True(t, IsPointerTargetInvalid(err))
}

func TestStore_ListSnapshots_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	second, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindBackup,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	summaries, err := store.ListSnapshots(t.Context(), "staging")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, second.SnapshotID, summaries[0].SnapshotID)
	assert.Equal(t, first.SnapshotID, summaries[1].SnapshotID)
}

func TestStore_CopySnapshotToEnv(t *testing.T) {
	store := newTestStore(t)

	source, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	copied, err := store.CopySnapshotToEnv(t.Context(), "staging", source.SnapshotID, "prod",
		models.SnapshotKindPromotion, "tester", "staging to prod")
	require.NoError(t, err)

	// Ownership transfer: new id under prod, provenance preserved.
	assert.NotEqual(t, source.SnapshotID, copied.SnapshotID)
	assert.Equal(t, "prod", copied.Manifest.TargetEnv)
	assert.Equal(t, "staging", copied.Manifest.SourceEnv)
	assert.Equal(t, source.SnapshotID, copied.Manifest.SourceSnapshotID)
	assert.Equal(t, source.Manifest.OverallHash, copied.Manifest.OverallHash)

	_, workflows, err := store.GetSnapshotContent(t.Context(), "prod", copied.SnapshotID)
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestStore_CopySnapshotToEnv_MissingSource(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CopySnapshotToEnv(t.Context(), "staging", "missing", "prod",
		models.SnapshotKindPromotion, "tester", "")
	require.Error(t, err)
	assert.True(t, IsSnapshotNotFound(err))
}

func TestStore_CreateSnapshot_GuardedHashing(t *testing.T) {
	repo, err := local.NewRepository(t.TempDir())
	require.NoError(t, err)

	guard := fingerprint.NewService(fingerprint.NewMemoryRegistry(), slog.Default())
	store := NewStore(repo, slog.Default()).WithGuard(guard)

	result, err := store.CreateSnapshot(t.Context(), CreateSnapshotRequest{
		TargetEnv: "staging",
		Workflows: testWorkflows(),
		Kind:      models.SnapshotKindPromotion,
		CreatedBy: "tester",
	})
	require.NoError(t, err)

	// Without collisions the guarded digest equals the plain content hash.
	for key, raw := range testWorkflows() {
		plain, err := fingerprint.HashRaw(raw)
		require.NoError(t, err)
		assert.Equal(t, plain, result.Manifest.Workflows[key])
	}
}
