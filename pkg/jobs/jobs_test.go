package jobs

import (
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *file.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p := file.NewPersistence(t.TempDir())

	return NewManager(logger, p.PromotionRepository()), p
}

func TestStartPromotion_CreatesRecord(t *testing.T) {
	manager, _ := newTestManager(t)

	result, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "alice", "release 12", false)
	require.NoError(t, err)
	assert.False(t, result.AlreadyRunning)
	assert.NotEmpty(t, result.Record.ID)
	assert.Equal(t, models.PromotionStatusPending, result.Record.Status)
	assert.Equal(t, "alice", result.Record.CreatedBy)
}

func TestStartPromotion_DeduplicatesActive(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "alice", "", false)
	require.NoError(t, err)

	second, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "bob", "", false)
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, "alice", second.Record.CreatedBy)
}

func TestStartPromotion_TerminalRecordDoesNotBlock(t *testing.T) {
	manager, p := newTestManager(t)

	first, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "alice", "", false)
	require.NoError(t, err)

	first.Record.Status = models.PromotionStatusCompleted
	require.NoError(t, p.PromotionRepository().Save(t.Context(), first.Record))

	second, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "bob", "", false)
	require.NoError(t, err)
	assert.False(t, second.AlreadyRunning)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestStartPromotion_DifferentTargetsIndependent(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "staging", "alice", "", false)
	require.NoError(t, err)

	result, err := manager.StartPromotion(t.Context(), "tenant-1", "staging", "prod", "alice", "", false)
	require.NoError(t, err)
	assert.False(t, result.AlreadyRunning)
}

func TestStartSync_RegistersJob(t *testing.T) {
	manager, _ := newTestManager(t)

	result, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)
	assert.False(t, result.AlreadyRunning)
	assert.NotEmpty(t, result.Job.ID)
	assert.Equal(t, "env-stg", result.Job.EnvironmentID)
}

func TestStartSync_DeduplicatesActive(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)

	second, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.Job.ID, second.Job.ID)
}

func TestStartSync_FinishReleasesEnvironment(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)

	manager.FinishSync("tenant-1", "env-stg")

	second, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)
	assert.False(t, second.AlreadyRunning)
	assert.NotEqual(t, first.Job.ID, second.Job.ID)
}

func TestStartSync_BlockedByActivePromotion(t *testing.T) {
	manager, _ := newTestManager(t)

	promo, err := manager.StartPromotion(t.Context(), "tenant-1", "dev", "env-stg", "alice", "", false)
	require.NoError(t, err)

	result, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)
	assert.True(t, result.AlreadyRunning)
	assert.Nil(t, result.Job)
	assert.Equal(t, promo.Record.ID, result.Blocking.ID)
}

func TestStartSync_DifferentEnvironmentsIndependent(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.StartSync(t.Context(), "tenant-1", "env-stg")
	require.NoError(t, err)
	assert.False(t, first.AlreadyRunning)

	second, err := manager.StartSync(t.Context(), "tenant-1", "env-prod")
	require.NoError(t, err)
	assert.False(t, second.AlreadyRunning)
}
