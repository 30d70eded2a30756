package models

import "time"

// SnapshotKind classifies why a snapshot was taken.
type SnapshotKind string

const (
	SnapshotKindPromotion SnapshotKind = "promotion" // Captured as part of a promotion
	SnapshotKindBackup    SnapshotKind = "backup"    // Pre-deploy safety capture of the target
	SnapshotKindManual    SnapshotKind = "manual"    // Operator-requested capture
)

// SnapshotManifest describes an immutable, content-addressed bundle of
// workflow definitions owned by exactly one target environment folder.
// Once committed, neither the manifest nor the workflow files are modified.
type SnapshotManifest struct {
	SnapshotID       string            `json:"snapshot_id"        validate:"required,uuid"`
	Kind             SnapshotKind      `json:"kind"               validate:"required,oneof=promotion backup manual"`
	TargetEnv        string            `json:"target_env"         validate:"required"`
	SourceEnv        string            `json:"source_env,omitempty"`
	SourceSnapshotID string            `json:"source_snapshot_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CreatedBy        string            `json:"created_by"`
	Reason           string            `json:"reason"`
	Workflows        map[string]string `json:"workflows"` // workflow key -> content hash
	WorkflowsCount   int               `json:"workflows_count"`
	OverallHash      string            `json:"overall_hash"`
}

// SnapshotSummary is the listing view of a snapshot manifest.
type SnapshotSummary struct {
	SnapshotID     string       `json:"snapshot_id"`
	Kind           SnapshotKind `json:"kind"`
	CreatedAt      time.Time    `json:"created_at"`
	CreatedBy      string       `json:"created_by"`
	Reason         string       `json:"reason"`
	WorkflowsCount int          `json:"workflows_count"`
}

// EnvironmentPointer is the single mutable record per environment naming the
// snapshot currently live. It is written only after deploy and verification
// succeed, and may only reference a snapshot owned by the same environment.
type EnvironmentPointer struct {
	Env                   string    `json:"env"`
	CurrentSnapshotID     string    `json:"current_snapshot_id"`
	CurrentSnapshotCommit string    `json:"current_snapshot_commit"`
	UpdatedAt             time.Time `json:"updated_at"`
	UpdatedBy             string    `json:"updated_by"`
}
