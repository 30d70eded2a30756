package services_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/promion/pkg/definition"
	"github.com/dukex/promion/pkg/deployer"
	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/gitrepo/local"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/dukex/promion/pkg/promotion"
	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/services"
	"github.com/dukex/promion/pkg/snapshotstore"
	"github.com/dukex/promion/pkg/testutil"
	"github.com/dukex/promion/pkg/verification"
)

type fakeFactory struct {
	adapters map[string]runtime.Adapter
}

func (f *fakeFactory) ID() string { return "n8n" }

func (f *fakeFactory) Create(env *models.Environment, _ map[string]any) (runtime.Adapter, error) {
	return f.adapters[env.ID], nil
}

type serviceFixture struct {
	svc      *services.Promotion
	persist  *file.Persistence
	store    *snapshotstore.Store
	policies enforcement.StaticPolicies
	tenants  map[string]entitlements.Tenant
	source   *testutil.FakeRuntime
	staging  *testutil.FakeRuntime
	prodRT   *testutil.FakeRuntime
	dev      *models.Environment
	stg      *models.Environment
	prod     *models.Environment
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := local.NewRepository(t.TempDir())
	require.NoError(t, err)

	persist := file.NewPersistence(t.TempDir())
	store := snapshotstore.NewStore(repo, logger)

	f := &serviceFixture{
		persist:  persist,
		store:    store,
		policies: enforcement.StaticPolicies{},
		tenants:  map[string]entitlements.Tenant{"t1": {Plan: entitlements.PlanBusiness, EnvironmentCount: 3}},
		source:   testutil.NewFakeRuntime(),
		staging:  testutil.NewFakeRuntime(),
		prodRT:   testutil.NewFakeRuntime(),
		dev:      &models.Environment{ID: "env-dev", TenantID: "t1", Name: "Development", Class: models.EnvironmentClassDevelopment, Provider: "n8n", GitFolder: "dev"},
		stg:      &models.Environment{ID: "env-stg", TenantID: "t1", Name: "Staging", Class: models.EnvironmentClassStaging, Provider: "n8n", GitFolder: "staging"},
		prod:     &models.Environment{ID: "env-prod", TenantID: "t1", Name: "Production", Class: models.EnvironmentClassProduction, Provider: "n8n", GitFolder: "prod"},
	}

	orch := promotion.NewOrchestrator(logger, promotion.Dependencies{
		Store:      store,
		Deployer:   deployer.NewDeployer(logger),
		Verifier:   verification.NewEngine(logger),
		Validator:  definition.NewValidator(),
		Promotions: persist.PromotionRepository(),
		Mappings:   persist.MappingRepository(),
		History:    persist.RetentionRepository(),
	}, promotion.Options{})

	registry := runtime.NewRegistry(logger)
	registry.RegisterFactory(&fakeFactory{adapters: map[string]runtime.Adapter{
		f.dev.ID:  f.source,
		f.stg.ID:  f.staging,
		f.prod.ID: f.prodRT,
	}})

	enforcer := enforcement.NewEnforcer(logger, f.policies,
		persist.IncidentRepository(), persist.ApprovalRepository())

	f.svc = services.NewPromotion(logger, persist, orch, enforcer,
		jobs.NewManager(logger, persist.PromotionRepository()), registry,
		services.StaticDirectory{
			f.dev.ID:  {Environment: f.dev},
			f.stg.ID:  {Environment: f.stg},
			f.prod.ID: {Environment: f.prod},
		}, entitlements.NewStaticGate(f.tenants))

	return f
}

func (f *serviceFixture) link(t *testing.T, runtimeID, canonicalID string) {
	t.Helper()

	f.source.Seed(runtimeID, map[string]any{
		"name": canonicalID,
		"nodes": []any{
			map[string]any{"name": "start", "type": "trigger"},
		},
	})

	err := f.persist.MappingRepository().Save(t.Context(), &models.WorkflowEnvironmentMapping{
		CanonicalID:       canonicalID,
		EnvironmentID:     f.dev.ID,
		RuntimeWorkflowID: runtimeID,
		Status:            models.MappingStatusLinked,
	})
	require.NoError(t, err)
}

func TestPromoteRequestValidation(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Promote(t.Context(), services.PromoteRequest{TenantID: "t1"})

	assert.Equal(t, services.ResultValidationError, result.Kind)
	assert.NotEmpty(t, result.Issues)
}

func TestPromoteUnknownEnvironment(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-nope",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})

	assert.Equal(t, services.ResultNotFound, result.Kind)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "environment_exists", result.Issues[0].Check)
	assert.NotEmpty(t, result.Issues[0].Remediation)
}

func TestPromoteForeignTenantForbidden(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t2",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "mallory",
	})

	assert.Equal(t, services.ResultForbidden, result.Kind)
}

func TestPromoteBlockedByActiveDrift(t *testing.T) {
	f := newServiceFixture(t)

	f.policies["t1"] = &models.DriftPolicy{TenantID: "t1", BlockDeploymentsOnDrift: true}

	err := f.persist.IncidentRepository().Save(t.Context(), &models.DriftIncident{
		ID:            "inc-1",
		TenantID:      "t1",
		EnvironmentID: f.stg.ID,
		Status:        models.DriftStatusDetected,
		DetectedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	f.link(t, "dev-1", "order-sync")

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})

	assert.Equal(t, services.ResultConflict, result.Kind)
	require.NotNil(t, result.Enforcement)
	assert.Equal(t, enforcement.ResultBlockedDrift, result.Enforcement.Result)
	require.NotEmpty(t, result.Issues)
	assert.NotEmpty(t, result.Issues[0].Remediation)
}

func TestPromoteDevToStagingSuccess(t *testing.T) {
	f := newServiceFixture(t)

	f.link(t, "dev-1", "order-sync")
	f.link(t, "dev-2", "invoice-export")

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1", "dev-2"},
		RequestedBy: "alice",
		Reason:      "release",
	})

	require.Equal(t, services.ResultSuccess, result.Kind)
	assert.False(t, result.RequiresApproval)
	assert.Equal(t, models.PromotionStatusCompleted, result.Record.Status)
	assert.Equal(t, 2, result.Deploy.Deployed)
	assert.Len(t, f.staging.Workflows(), 2)
}

func TestPromoteAlreadyRunning(t *testing.T) {
	f := newServiceFixture(t)

	err := f.persist.PromotionRepository().Save(t.Context(), &models.PromotionRecord{
		ID:          "p-open",
		TenantID:    "t1",
		SourceEnvID: f.dev.ID,
		TargetEnvID: f.stg.ID,
		Status:      models.PromotionStatusDeploying,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	f.link(t, "dev-1", "order-sync")

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})

	assert.Equal(t, services.ResultAlreadyRunning, result.Kind)
	assert.Equal(t, "p-open", result.Record.ID)
}

func TestPromoteUnlinkedWorkflowGetsRemediation(t *testing.T) {
	f := newServiceFixture(t)

	f.source.Seed("dev-9", map[string]any{"name": "stray"})

	err := f.persist.MappingRepository().Save(t.Context(), &models.WorkflowEnvironmentMapping{
		EnvironmentID:     f.dev.ID,
		RuntimeWorkflowID: "dev-9",
		Status:            models.MappingStatusUntracked,
	})
	require.NoError(t, err)

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-9"},
		RequestedBy: "alice",
	})

	assert.Equal(t, services.ResultValidationError, result.Kind)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "mapping_linked", result.Issues[0].Check)
	assert.NotEmpty(t, result.Issues[0].Remediation)
}

func TestPromoteToProductionThenApprove(t *testing.T) {
	f := newServiceFixture(t)

	f.link(t, "dev-1", "order-sync")

	staged := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})
	require.Equal(t, services.ResultSuccess, staged.Kind)

	pending := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-stg",
		TargetEnvID: "env-prod",
		RequestedBy: "alice",
	})

	require.Equal(t, services.ResultSuccess, pending.Kind)
	assert.True(t, pending.RequiresApproval)
	assert.Equal(t, models.PromotionStatusPendingApproval, pending.Record.Status)

	approved := f.svc.Approve(t.Context(), services.ApproveRequest{
		TenantID:    "t1",
		PromotionID: pending.Record.ID,
		ApprovedBy:  "bob",
	})

	require.Equal(t, services.ResultSuccess, approved.Kind)
	assert.Equal(t, models.PromotionStatusCompleted, approved.Record.Status)
	assert.Len(t, f.prodRT.Workflows(), 1)

	pointerID, err := f.store.GetCurrentSnapshotID(t.Context(), f.prod.GitFolder)
	require.NoError(t, err)
	assert.Equal(t, approved.Record.SnapshotID, pointerID)
}

func TestPromoteFromUnonboardedStaging(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-stg",
		TargetEnvID: "env-prod",
		RequestedBy: "alice",
	})

	assert.Equal(t, services.ResultValidationError, result.Kind)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "source_onboarded", result.Issues[0].Check)
}

func TestRejectThenApproveConflicts(t *testing.T) {
	f := newServiceFixture(t)

	f.link(t, "dev-1", "order-sync")

	staged := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})
	require.Equal(t, services.ResultSuccess, staged.Kind)

	pending := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-stg",
		TargetEnvID: "env-prod",
		RequestedBy: "alice",
	})
	require.True(t, pending.RequiresApproval)

	rejected := f.svc.Reject(t.Context(), services.RejectRequest{
		TenantID:    "t1",
		PromotionID: pending.Record.ID,
		DecidedBy:   "bob",
		Reason:      "not yet",
	})
	require.Equal(t, services.ResultSuccess, rejected.Kind)
	assert.Equal(t, models.PromotionStatusRejected, rejected.Record.Status)

	again := f.svc.Approve(t.Context(), services.ApproveRequest{
		TenantID:    "t1",
		PromotionID: pending.Record.ID,
		ApprovedBy:  "bob",
	})
	assert.Equal(t, services.ResultConflict, again.Kind)
}

func TestRollbackThroughService(t *testing.T) {
	f := newServiceFixture(t)

	f.link(t, "dev-1", "order-sync")

	first := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})
	require.Equal(t, services.ResultSuccess, first.Kind)

	f.source.Seed("dev-1", map[string]any{
		"name": "order-sync",
		"nodes": []any{
			map[string]any{"name": "start", "type": "trigger"},
			map[string]any{"name": "notify", "type": "http"},
		},
	})

	second := f.svc.Promote(t.Context(), services.PromoteRequest{
		TenantID:    "t1",
		SourceEnvID: "env-dev",
		TargetEnvID: "env-stg",
		WorkflowIDs: []string{"dev-1"},
		RequestedBy: "alice",
	})
	require.Equal(t, services.ResultSuccess, second.Kind)

	rolledBack := f.svc.Rollback(t.Context(), services.RollbackRequest{
		TenantID:      "t1",
		EnvironmentID: "env-stg",
		SnapshotID:    first.Record.SnapshotID,
		RequestedBy:   "alice",
		Reason:        "regression",
	})

	require.Equal(t, services.ResultSuccess, rolledBack.Kind)
	assert.Equal(t, models.PromotionStatusCompleted, rolledBack.Record.Status)

	pointerID, err := f.store.GetCurrentSnapshotID(t.Context(), f.stg.GitFolder)
	require.NoError(t, err)
	assert.Equal(t, first.Record.SnapshotID, pointerID)
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	f := newServiceFixture(t)

	result := f.svc.Rollback(t.Context(), services.RollbackRequest{
		TenantID:      "t1",
		EnvironmentID: "env-stg",
		SnapshotID:    "missing",
		RequestedBy:   "alice",
	})

	assert.Equal(t, services.ResultNotFound, result.Kind)
}
