package models

import "time"

// MappingStatus is the governance status of a workflow within one
// environment. Only linked workflows may be promoted.
type MappingStatus string

const (
	MappingStatusUntracked MappingStatus = "untracked" // Seen in the runtime, not yet canonicalized
	MappingStatusLinked    MappingStatus = "linked"    // Bound to a canonical identity
	MappingStatusMissing   MappingStatus = "missing"   // Canonicalized but absent from the runtime
)

// WorkflowEnvironmentMapping links a canonical, provider-independent workflow
// identity to its concrete representation in one environment's runtime.
type WorkflowEnvironmentMapping struct {
	CanonicalID       string         `json:"canonical_id,omitempty"`
	EnvironmentID     string         `json:"environment_id" validate:"required"`
	RuntimeWorkflowID string         `json:"n8n_workflow_id" validate:"required"`
	WorkflowName      string         `json:"workflow_name"`
	Status            MappingStatus  `json:"status" validate:"required,oneof=untracked linked missing"`
	EnvContentHash    string         `json:"env_content_hash,omitempty"`
	WorkflowData      map[string]any `json:"workflow_data,omitempty"`
	LinkedAt          *time.Time     `json:"linked_at,omitempty"`
	LastSeenAt        time.Time      `json:"last_seen_at"`
}

// Promotable reports whether this workflow may be included in a promotion.
func (m *WorkflowEnvironmentMapping) Promotable() bool {
	return m.Status == MappingStatusLinked
}

// EnvMapSidecar is the Git sidecar file linking a canonical workflow to its
// per-environment runtime representations.
type EnvMapSidecar struct {
	CanonicalWorkflowID string                        `json:"canonical_workflow_id"`
	WorkflowName        string                        `json:"workflow_name"`
	Environments        map[string]EnvMapSidecarEntry `json:"environments"`
}

// EnvMapSidecarEntry records the runtime identity of a canonical workflow in
// one environment.
type EnvMapSidecarEntry struct {
	RuntimeWorkflowID string    `json:"n8n_workflow_id"`
	ContentHash       string    `json:"content_hash"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}
