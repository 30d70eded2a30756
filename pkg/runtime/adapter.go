// Package runtime defines the capability interface the promotion core uses
// to talk to a live workflow runtime, plus a registry dispatching to one
// adapter implementation per provider.
package runtime

import (
	"context"
	"errors"
	"time"
)

// Standard runtime adapter error types.
var (
	// ErrWorkflowNotFound indicates a workflow id is unknown to the runtime.
	// The deployer checks for it to fall back from update to create.
	ErrWorkflowNotFound = errors.New("runtime workflow not found")

	// ErrConnectionFailed indicates the runtime is unreachable.
	ErrConnectionFailed = errors.New("runtime connection failed")
)

// WorkflowSummary is the listing view of a runtime workflow.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialRef names a credential configured in the runtime without
// exposing its secret material.
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecutionSummary is one historical execution of a runtime workflow.
type ExecutionSummary struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// UserRef is a runtime user account.
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TagRef is a runtime workflow tag.
type TagRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Adapter is the provider-independent capability interface over a live
// workflow runtime. One implementation exists per provider; the orchestrator
// and deployer depend only on this interface.
type Adapter interface {
	TestConnection(ctx context.Context) (bool, error)
	GetWorkflows(ctx context.Context) ([]WorkflowSummary, error)
	GetWorkflow(ctx context.Context, id string) (map[string]any, error)
	CreateWorkflow(ctx context.Context, definition map[string]any) (string, error)
	UpdateWorkflow(ctx context.Context, id string, definition map[string]any) error
	DeleteWorkflow(ctx context.Context, id string) error
	GetCredentials(ctx context.Context) ([]CredentialRef, error)
	GetExecutions(ctx context.Context, limit int) ([]ExecutionSummary, error)
	GetUsers(ctx context.Context) ([]UserRef, error)
	GetTags(ctx context.Context) ([]TagRef, error)
}

// IsWorkflowNotFound checks if an error indicates an unknown runtime
// workflow id.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}
