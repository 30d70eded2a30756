// Package services is the orchestration-API boundary: it wraps the
// promotion orchestrator, drift enforcement, and job management behind
// HTTP-agnostic result kinds.
package services

import (
	"github.com/dukex/promion/pkg/deployer"
	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/models"
)

// ResultKind classifies a service operation's outcome without committing to
// a transport. Callers map kinds to HTTP statuses or CLI exit codes.
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultAlreadyRunning  ResultKind = "already_running"
	ResultNotFound        ResultKind = "not_found"
	ResultForbidden       ResultKind = "forbidden"
	ResultConflict        ResultKind = "conflict"
	ResultValidationError ResultKind = "validation_error"
	ResultInternalError   ResultKind = "internal_error"
)

// ValidationIssue is one blocking pre-flight failure. Remediation is a
// first-class field shown to the user, not a log line.
type ValidationIssue struct {
	Check       string `json:"check"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation,omitempty"`
}

// PromotionResult is the envelope every promotion operation returns. Err is
// populated for internal_error only; every other kind is a fully-described
// business outcome.
type PromotionResult struct {
	Kind             ResultKind              `json:"kind"`
	Record           *models.PromotionRecord `json:"record,omitempty"`
	RequiresApproval bool                    `json:"requires_approval,omitempty"`
	Deploy           *deployer.Result        `json:"deploy,omitempty"`
	Rollback         *models.RollbackResult  `json:"rollback,omitempty"`
	Enforcement      *enforcement.Decision   `json:"enforcement,omitempty"`
	Issues           []ValidationIssue       `json:"issues,omitempty"`
	Err              error                   `json:"-"`
}

// IncidentResult is the envelope for incident action operations.
type IncidentResult struct {
	Kind     ResultKind                 `json:"kind"`
	Incident *models.DriftIncident      `json:"incident,omitempty"`
	Approval *models.ApprovalRequest    `json:"approval,omitempty"`
	Status   enforcement.ApprovalStatus `json:"approval_status,omitempty"`
	Issues   []ValidationIssue          `json:"issues,omitempty"`
	Err      error                      `json:"-"`
}
