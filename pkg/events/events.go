// Package events defines event types and structures for promotion lifecycle
// notifications.
package events

import (
	"time"

	"github.com/dukex/promion/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "promion.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Promotion lifecycle events.
	PromotionStartedEvent         EventType = "promotion.started"
	PromotionSnapshotCreatedEvent EventType = "promotion.snapshot.created"
	PromotionPendingApprovalEvent EventType = "promotion.pending_approval"
	PromotionCompletedEvent       EventType = "promotion.completed"
	PromotionFailedEvent          EventType = "promotion.failed"
	PromotionRolledBackEvent      EventType = "promotion.rolled_back"

	// Drift lifecycle events.
	DriftDetectedEvent EventType = "drift.detected"
	DriftClosedEvent   EventType = "drift.closed"

	// Operational events.
	FingerprintCollisionEvent    EventType = "fingerprint.collision"
	RetentionSweepCompletedEvent EventType = "retention.sweep.completed"
	JobProgressEvent             EventType = "job.progress"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type PromotionStarted struct {
	BaseEvent

	PromotionID string `json:"promotion_id"`
	SourceEnvID string `json:"source_env_id"`
	TargetEnvID string `json:"target_env_id"`
	Rollback    bool   `json:"rollback"`
}

func (e PromotionStarted) GetType() EventType {
	return PromotionStartedEvent
}

type PromotionSnapshotCreated struct {
	BaseEvent

	PromotionID    string `json:"promotion_id"`
	SnapshotID     string `json:"snapshot_id"`
	CommitSHA      string `json:"commit_sha"`
	TargetEnvID    string `json:"target_env_id"`
	WorkflowsCount int    `json:"workflows_count"`
}

func (e PromotionSnapshotCreated) GetType() EventType {
	return PromotionSnapshotCreatedEvent
}

type PromotionPendingApproval struct {
	BaseEvent

	PromotionID string `json:"promotion_id"`
	TargetEnvID string `json:"target_env_id"`
	SnapshotID  string `json:"snapshot_id"`
}

func (e PromotionPendingApproval) GetType() EventType {
	return PromotionPendingApprovalEvent
}

type PromotionCompleted struct {
	BaseEvent

	PromotionID string        `json:"promotion_id"`
	TargetEnvID string        `json:"target_env_id"`
	SnapshotID  string        `json:"snapshot_id"`
	Deployed    int           `json:"deployed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
}

func (e PromotionCompleted) GetType() EventType {
	return PromotionCompletedEvent
}

type PromotionFailed struct {
	BaseEvent

	PromotionID string                 `json:"promotion_id"`
	TargetEnvID string                 `json:"target_env_id"`
	Error       string                 `json:"error"`
	Rollback    *models.RollbackResult `json:"rollback,omitempty"`
}

func (e PromotionFailed) GetType() EventType {
	return PromotionFailedEvent
}

type PromotionRolledBack struct {
	BaseEvent

	PromotionID string `json:"promotion_id"`
	TargetEnvID string `json:"target_env_id"`
	SnapshotID  string `json:"snapshot_id"`
}

func (e PromotionRolledBack) GetType() EventType {
	return PromotionRolledBackEvent
}

type DriftDetected struct {
	BaseEvent

	IncidentID        string   `json:"incident_id"`
	EnvironmentID     string   `json:"environment_id"`
	AffectedWorkflows []string `json:"affected_workflows"`
}

func (e DriftDetected) GetType() EventType {
	return DriftDetectedEvent
}

type DriftClosed struct {
	BaseEvent

	IncidentID    string `json:"incident_id"`
	EnvironmentID string `json:"environment_id"`
	Reason        string `json:"reason,omitempty"`
}

func (e DriftClosed) GetType() EventType {
	return DriftClosedEvent
}

type FingerprintCollision struct {
	BaseEvent

	Digest           string `json:"digest"`
	EntityID         string `json:"entity_id,omitempty"`
	ExistingEntityID string `json:"existing_entity_id,omitempty"`
	Resolved         bool   `json:"resolved"`
}

func (e FingerprintCollision) GetType() EventType {
	return FingerprintCollisionEvent
}

type RetentionSweepCompleted struct {
	BaseEvent

	Deleted int      `json:"deleted"`
	DryRun  bool     `json:"dry_run"`
	Errors  []string `json:"errors,omitempty"`
}

func (e RetentionSweepCompleted) GetType() EventType {
	return RetentionSweepCompletedEvent
}

type JobProgress struct {
	BaseEvent

	JobID   string         `json:"job_id"`
	Status  string         `json:"status"`
	Current int            `json:"current"`
	Total   int            `json:"total"`
	Message string         `json:"message,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (e JobProgress) GetType() EventType {
	return JobProgressEvent
}
