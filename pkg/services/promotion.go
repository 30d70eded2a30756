package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/jobs"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/promotion"
	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/snapshotstore"
)

// Promotion is the service boundary for promotion and rollback operations.
type Promotion struct {
	persistence  persistence.Persistence
	orchestrator *promotion.Orchestrator
	enforcer     *enforcement.Enforcer
	manager      *jobs.Manager
	registry     *runtime.Registry
	directory    EnvironmentDirectory
	gate         entitlements.Gate
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewPromotion creates a promotion service.
func NewPromotion(
	logger *slog.Logger,
	persistence persistence.Persistence,
	orchestrator *promotion.Orchestrator,
	enforcer *enforcement.Enforcer,
	manager *jobs.Manager,
	registry *runtime.Registry,
	directory EnvironmentDirectory,
	gate entitlements.Gate,
) *Promotion {
	return &Promotion{
		persistence:  persistence,
		orchestrator: orchestrator,
		enforcer:     enforcer,
		manager:      manager,
		registry:     registry,
		directory:    directory,
		gate:         gate,
		validate:     validator.New(),
		logger:       logger.With("module", "services"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Promotion) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// PromoteRequest asks for a promotion from one environment to another.
// WorkflowIDs selects source runtime workflows and is required when the
// source is a development environment; copy-based promotions ignore it.
type PromoteRequest struct {
	TenantID    string   `validate:"required"`
	SourceEnvID string   `validate:"required"`
	TargetEnvID string   `validate:"required,nefield=SourceEnvID"`
	WorkflowIDs []string `validate:"-"`
	RequestedBy string   `validate:"required"`
	Reason      string   `validate:"-"`
}

// Promote runs the full promotion flow: request validation, drift
// enforcement, idempotent job creation, then the orchestrator.
func (s *Promotion) Promote(ctx context.Context, req PromoteRequest) *PromotionResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &PromotionResult{Kind: ResultValidationError, Issues: issues}
	}

	source, target, result := s.resolvePair(ctx, req.TenantID, req.SourceEnvID, req.TargetEnvID)
	if result != nil {
		return result
	}

	if source.Environment.Class == models.EnvironmentClassDevelopment && len(req.WorkflowIDs) == 0 {
		return &PromotionResult{Kind: ResultValidationError, Issues: []ValidationIssue{{
			Check:       "workflow_selection",
			Detail:      "no workflows selected for promotion",
			Remediation: "Select at least one workflow from the source environment.",
		}}}
	}

	decision := s.enforcer.CheckEnforcementWithOverride(ctx, req.TenantID, target.Environment.ID)
	if !decision.Allowed {
		return &PromotionResult{
			Kind:        ResultConflict,
			Enforcement: decision,
			Issues: []ValidationIssue{{
				Check:       "drift_enforcement",
				Detail:      fmt.Sprintf("deployments into %s are blocked: %s", target.Environment.ID, decision.Result),
				Remediation: "Resolve or acknowledge the active drift incident, or request an override approval.",
			}},
		}
	}

	start, err := s.manager.StartPromotion(ctx, req.TenantID,
		source.Environment.ID, target.Environment.ID, req.RequestedBy, req.Reason, false)
	if err != nil {
		return s.internal(ctx, "start promotion", err)
	}

	if start.AlreadyRunning {
		return &PromotionResult{Kind: ResultAlreadyRunning, Record: start.Record}
	}

	if source.Environment.Class == models.EnvironmentClassDevelopment {
		return s.runDevToStaging(ctx, start.Record, source, target, req.WorkflowIDs)
	}

	return s.runPointerCopy(ctx, start.Record, source, target)
}

// ApproveRequest resumes a promotion or rollback waiting for approval.
type ApproveRequest struct {
	TenantID    string `validate:"required"`
	PromotionID string `validate:"required"`
	ApprovedBy  string `validate:"required"`
}

// Approve executes a PENDING_APPROVAL promotion or rollback.
func (s *Promotion) Approve(ctx context.Context, req ApproveRequest) *PromotionResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &PromotionResult{Kind: ResultValidationError, Issues: issues}
	}

	record, result := s.loadRecord(ctx, req.TenantID, req.PromotionID)
	if result != nil {
		return result
	}

	target, err := s.directory.GetEnvironment(ctx, record.TargetEnvID)
	if err != nil {
		return s.environmentFailure(ctx, record.TargetEnvID, err)
	}

	adapter, err := s.registry.CreateAdapter(target.Environment, target.Config)
	if err != nil {
		return s.internal(ctx, "create runtime adapter", err)
	}

	approve := promotion.ApproveRequest{
		Record:     record,
		TargetEnv:  target.Environment,
		Target:     adapter,
		ApprovedBy: req.ApprovedBy,
	}

	var outcome *promotion.Outcome
	if record.Rollback {
		outcome, err = s.orchestrator.ApproveAndExecuteRollback(ctx, approve)
	} else {
		outcome, err = s.orchestrator.ApproveAndExecute(ctx, approve)
	}

	return s.translateOutcome(ctx, outcome, err)
}

// RejectRequest declines a pending promotion.
type RejectRequest struct {
	TenantID    string `validate:"required"`
	PromotionID string `validate:"required"`
	DecidedBy   string `validate:"required"`
	Reason      string `validate:"-"`
}

// Reject terminates a PENDING_APPROVAL promotion without deploying.
func (s *Promotion) Reject(ctx context.Context, req RejectRequest) *PromotionResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &PromotionResult{Kind: ResultValidationError, Issues: issues}
	}

	record, result := s.loadRecord(ctx, req.TenantID, req.PromotionID)
	if result != nil {
		return result
	}

	err := s.orchestrator.Reject(ctx, record, req.DecidedBy, req.Reason)
	if err != nil {
		if errors.Is(err, promotion.ErrNotPendingApproval) {
			return &PromotionResult{Kind: ResultConflict, Record: record, Issues: []ValidationIssue{{
				Check:  "promotion_status",
				Detail: fmt.Sprintf("promotion is %s, not pending approval", record.Status),
			}}}
		}

		return s.internal(ctx, "reject promotion", err)
	}

	return &PromotionResult{Kind: ResultSuccess, Record: record}
}

// RollbackRequest re-deploys an existing snapshot owned by the environment.
type RollbackRequest struct {
	TenantID      string `validate:"required"`
	EnvironmentID string `validate:"required"`
	SnapshotID    string `validate:"required"`
	RequestedBy   string `validate:"required"`
	Reason        string `validate:"-"`
}

// Rollback starts a rollback job for the environment. Production rollbacks
// stop at PENDING_APPROVAL like forward promotions.
func (s *Promotion) Rollback(ctx context.Context, req RollbackRequest) *PromotionResult {
	if issues := s.validateRequest(req); len(issues) > 0 {
		return &PromotionResult{Kind: ResultValidationError, Issues: issues}
	}

	target, err := s.directory.GetEnvironment(ctx, req.EnvironmentID)
	if err != nil {
		return s.environmentFailure(ctx, req.EnvironmentID, err)
	}

	if target.Environment.TenantID != req.TenantID {
		return &PromotionResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "environment belongs to a different tenant",
		}}}
	}

	adapter, err := s.registry.CreateAdapter(target.Environment, target.Config)
	if err != nil {
		return s.internal(ctx, "create runtime adapter", err)
	}

	start, err := s.manager.StartPromotion(ctx, req.TenantID,
		req.EnvironmentID, req.EnvironmentID, req.RequestedBy, req.Reason, true)
	if err != nil {
		return s.internal(ctx, "start rollback", err)
	}

	if start.AlreadyRunning {
		return &PromotionResult{Kind: ResultAlreadyRunning, Record: start.Record}
	}

	outcome, err := s.orchestrator.InitiateRollback(ctx, promotion.RollbackRequest{
		Record:     start.Record,
		TargetEnv:  target.Environment,
		Target:     adapter,
		SnapshotID: req.SnapshotID,
	})

	return s.translateOutcome(ctx, outcome, err)
}

// GetPromotion returns one promotion record scoped to the tenant.
func (s *Promotion) GetPromotion(ctx context.Context, tenantID, promotionID string) *PromotionResult {
	record, result := s.loadRecord(ctx, tenantID, promotionID)
	if result != nil {
		return result
	}

	return &PromotionResult{Kind: ResultSuccess, Record: record}
}

// ListPromotions returns every promotion record for the tenant, newest
// first.
func (s *Promotion) ListPromotions(ctx context.Context, tenantID string) ([]*models.PromotionRecord, error) {
	return s.persistence.PromotionRepository().ListByTenant(ctx, tenantID)
}

func (s *Promotion) runDevToStaging(ctx context.Context, record *models.PromotionRecord, source, target *Entry, workflowIDs []string) *PromotionResult {
	sourceAdapter, err := s.registry.CreateAdapter(source.Environment, source.Config)
	if err != nil {
		return s.internal(ctx, "create source adapter", err)
	}

	targetAdapter, err := s.registry.CreateAdapter(target.Environment, target.Config)
	if err != nil {
		return s.internal(ctx, "create target adapter", err)
	}

	outcome, err := s.orchestrator.InitiateDevToStaging(ctx, promotion.DevToStagingRequest{
		Record:      record,
		SourceEnv:   source.Environment,
		TargetEnv:   target.Environment,
		Source:      sourceAdapter,
		Target:      targetAdapter,
		WorkflowIDs: workflowIDs,
	})

	return s.translateOutcome(ctx, outcome, err)
}

func (s *Promotion) runPointerCopy(ctx context.Context, record *models.PromotionRecord, source, target *Entry) *PromotionResult {
	outcome, err := s.orchestrator.InitiateStagingToProd(ctx, promotion.StagingToProdRequest{
		Record:    record,
		SourceEnv: source.Environment,
		TargetEnv: target.Environment,
	})

	return s.translateOutcome(ctx, outcome, err)
}

// translateOutcome maps orchestrator results and errors to result kinds
// with remediation hints.
func (s *Promotion) translateOutcome(ctx context.Context, outcome *promotion.Outcome, err error) *PromotionResult {
	result := &PromotionResult{Kind: ResultSuccess}
	if outcome != nil {
		result.Record = outcome.Record
		result.RequiresApproval = outcome.RequiresApproval
		result.Deploy = outcome.Deploy
		result.Rollback = outcome.Rollback
	}

	if err == nil {
		return result
	}

	var guardrail *promotion.GuardrailError
	if errors.As(err, &guardrail) {
		result.Kind = ResultValidationError
		for _, runtimeID := range guardrail.RuntimeIDs {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:       "mapping_linked",
				Detail:      fmt.Sprintf("workflow %s is not linked to a canonical identity", runtimeID),
				Remediation: "Onboard or canonicalize the workflow in its source environment before promoting it.",
			})
		}

		return result
	}

	var invalid *promotion.ValidationError
	if errors.As(err, &invalid) {
		result.Kind = ResultValidationError
		for _, issue := range invalid.Issues {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:       issue.Check,
				Detail:      issue.Detail,
				Remediation: issue.Remediation,
			})
		}

		return result
	}

	switch {
	case errors.Is(err, promotion.ErrSourceUnonboarded):
		result.Kind = ResultValidationError
		result.Issues = []ValidationIssue{{
			Check:       "source_onboarded",
			Detail:      err.Error(),
			Remediation: "Promote into the source environment first so it has a current snapshot.",
		}}
	case errors.Is(err, promotion.ErrNotPendingApproval), errors.Is(err, promotion.ErrNotRollback):
		result.Kind = ResultConflict
		result.Issues = []ValidationIssue{{Check: "promotion_status", Detail: err.Error()}}
	case snapshotstore.IsSnapshotAlreadyExists(err):
		result.Kind = ResultConflict
		result.Issues = []ValidationIssue{{
			Check:       "snapshot_immutable",
			Detail:      err.Error(),
			Remediation: "Another promotion already wrote this snapshot; inspect the existing record instead of retrying.",
		}}
	case snapshotstore.IsSnapshotNotFound(err):
		result.Kind = ResultNotFound
		result.Issues = []ValidationIssue{{Check: "snapshot_exists", Detail: err.Error()}}
	default:
		s.logger.ErrorContext(ctx, "Promotion operation failed", "error", err)

		result.Kind = ResultInternalError
		result.Err = err
	}

	return result
}

func (s *Promotion) resolvePair(ctx context.Context, tenantID, sourceEnvID, targetEnvID string) (*Entry, *Entry, *PromotionResult) {
	source, err := s.directory.GetEnvironment(ctx, sourceEnvID)
	if err != nil {
		return nil, nil, s.environmentFailure(ctx, sourceEnvID, err)
	}

	target, err := s.directory.GetEnvironment(ctx, targetEnvID)
	if err != nil {
		return nil, nil, s.environmentFailure(ctx, targetEnvID, err)
	}

	if source.Environment.TenantID != tenantID || target.Environment.TenantID != tenantID {
		return nil, nil, &PromotionResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "environment belongs to a different tenant",
		}}}
	}

	return source, target, nil
}

func (s *Promotion) loadRecord(ctx context.Context, tenantID, promotionID string) (*models.PromotionRecord, *PromotionResult) {
	record, err := s.persistence.PromotionRepository().GetByID(ctx, promotionID)
	if err != nil {
		if persistence.IsPromotionNotFound(err) {
			return nil, &PromotionResult{Kind: ResultNotFound}
		}

		return nil, s.internal(ctx, "load promotion", err)
	}

	if record.TenantID != tenantID {
		return nil, &PromotionResult{Kind: ResultForbidden, Issues: []ValidationIssue{{
			Check:  "tenant_scope",
			Detail: "promotion belongs to a different tenant",
		}}}
	}

	return record, nil
}

func (s *Promotion) environmentFailure(ctx context.Context, environmentID string, err error) *PromotionResult {
	if errors.Is(err, ErrEnvironmentNotFound) {
		return &PromotionResult{Kind: ResultNotFound, Issues: []ValidationIssue{{
			Check:       "environment_exists",
			Detail:      fmt.Sprintf("environment %s not found", environmentID),
			Remediation: "Check the environment id or create the environment first.",
		}}}
	}

	return s.internal(ctx, "resolve environment", err)
}

func (s *Promotion) internal(ctx context.Context, op string, err error) *PromotionResult {
	s.logger.ErrorContext(ctx, "Promotion service failure", "op", op, "error", err)

	return &PromotionResult{Kind: ResultInternalError, Err: fmt.Errorf("failed to %s: %w", op, err)}
}

func (s *Promotion) validateRequest(req any) []ValidationIssue {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationIssue{{Check: "request", Detail: err.Error()}}
	}

	issues := make([]ValidationIssue, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		issues = append(issues, ValidationIssue{
			Check:  "request",
			Detail: fmt.Sprintf("field %s failed validation rule %s", fieldError.Field(), fieldError.Tag()),
		})
	}

	return issues
}
