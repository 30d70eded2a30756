// Package reconciler periodically compares live runtimes against Git and
// manages the drift incident lifecycle: it opens an incident when an
// environment diverges and closes it when the environment returns to sync.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/events"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/verification"
)

// Target is one environment the reconciler watches, paired with its runtime
// adapter.
type Target struct {
	Environment *models.Environment
	Adapter     runtime.Adapter
}

// TargetSource lists the environments to reconcile. Development environments
// are skipped by the drift detector itself.
type TargetSource interface {
	Targets(ctx context.Context) ([]Target, error)
}

// StaticTargets is a TargetSource over a fixed slice.
type StaticTargets []Target

func (s StaticTargets) Targets(_ context.Context) ([]Target, error) {
	return s, nil
}

// EnvironmentReport is the reconciliation outcome for one environment.
type EnvironmentReport struct {
	EnvironmentID   string `json:"environment_id"`
	DriftWorkflows  int    `json:"drift_workflows"`
	IncidentOpened  bool   `json:"incident_opened"`
	IncidentUpdated bool   `json:"incident_updated"`
	IncidentClosed  bool   `json:"incident_closed"`
}

// Report aggregates one reconciliation pass.
type Report struct {
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Environments []EnvironmentReport `json:"environments"`
	Errors       []string            `json:"errors,omitempty"`
}

// Engine detects drift and drives incidents through their lifecycle.
type Engine struct {
	verifier  *verification.Engine
	incidents persistence.IncidentRepository
	mappings  persistence.MappingRepository
	policies  enforcement.PolicyLoader
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a reconciliation engine. Publisher may be nil.
func NewEngine(
	logger *slog.Logger,
	verifier *verification.Engine,
	incidents persistence.IncidentRepository,
	mappings persistence.MappingRepository,
	policies enforcement.PolicyLoader,
	publisher eventbus.EventPublisher,
) *Engine {
	return &Engine{
		verifier:  verifier,
		incidents: incidents,
		mappings:  mappings,
		policies:  policies,
		publisher: publisher,
		logger:    logger.With("module", "reconciler"),
		now:       time.Now,
	}
}

// ReconcileAll runs one pass over every target. Per-environment failures are
// collected without aborting the pass for the remaining environments.
func (e *Engine) ReconcileAll(ctx context.Context, source TargetSource) (*Report, error) {
	report := &Report{StartedAt: e.now().UTC()}

	targets, err := source.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation targets: %w", err)
	}

	for _, target := range targets {
		envReport, err := e.reconcileEnvironment(ctx, target)
		if err != nil {
			e.logger.ErrorContext(ctx, "Reconciliation failed for environment",
				"environment_id", target.Environment.ID, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", target.Environment.ID, err))

			continue
		}

		if envReport != nil {
			report.Environments = append(report.Environments, *envReport)
		}
	}

	report.FinishedAt = e.now().UTC()

	return report, nil
}

func (e *Engine) reconcileEnvironment(ctx context.Context, target Target) (*EnvironmentReport, error) {
	env := target.Environment
	if !env.TracksDrift() {
		return nil, nil
	}

	mappings, err := e.mappings.ListByEnvironment(ctx, env.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	entries, err := e.verifier.DetectDrift(ctx, env, target.Adapter, mappings)
	if err != nil {
		return nil, err
	}

	e.markMissing(ctx, env, entries)

	active, err := e.incidents.ActiveByEnvironment(ctx, env.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active incidents: %w", err)
	}

	report := &EnvironmentReport{EnvironmentID: env.ID, DriftWorkflows: len(entries)}

	if len(entries) == 0 {
		for _, incident := range active {
			err = e.closeIncident(ctx, incident, "environment back in sync")
			if err != nil {
				return nil, err
			}

			report.IncidentClosed = true
		}

		return report, nil
	}

	affected := make([]string, 0, len(entries))
	for _, entry := range entries {
		affected = append(affected, entry.CanonicalID)
	}

	if len(active) > 0 {
		// At most one non-closed incident per environment; refresh its
		// affected set rather than opening a duplicate.
		incident := active[0]
		incident.AffectedWorkflows = affected
		incident.Severity = severityFor(len(affected), len(mappings))

		err = e.incidents.Save(ctx, incident)
		if err != nil {
			return nil, fmt.Errorf("failed to update incident: %w", err)
		}

		report.IncidentUpdated = true

		return report, nil
	}

	incident, err := e.openIncident(ctx, env, affected, len(mappings))
	if err != nil {
		return nil, err
	}

	report.IncidentOpened = incident != nil

	return report, nil
}

func (e *Engine) openIncident(ctx context.Context, env *models.Environment, affected []string, tracked int) (*models.DriftIncident, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate incident id: %w", err)
	}

	now := e.now().UTC()
	incident := &models.DriftIncident{
		ID:                id.String(),
		TenantID:          env.TenantID,
		EnvironmentID:     env.ID,
		Status:            models.DriftStatusDetected,
		Severity:          severityFor(len(affected), tracked),
		AffectedWorkflows: affected,
		DetectedAt:        now,
	}

	policy, err := e.policies.PolicyByTenant(ctx, env.TenantID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load drift policy, opening incident without TTL",
			"tenant_id", env.TenantID, "error", err)
	}

	if policy != nil && policy.DefaultTTL > 0 {
		expires := now.Add(policy.DefaultTTL)
		incident.ExpiresAt = &expires
	}

	err = e.incidents.Save(ctx, incident)
	if err != nil {
		return nil, fmt.Errorf("failed to save incident: %w", err)
	}

	e.logger.InfoContext(ctx, "Drift incident opened",
		"incident_id", incident.ID,
		"environment_id", env.ID,
		"workflows", len(affected),
		"severity", incident.Severity,
	)
	e.publish(ctx, env.TenantID, events.DriftDetected{
		BaseEvent:         e.baseEvent(events.DriftDetectedEvent, env.TenantID),
		IncidentID:        incident.ID,
		EnvironmentID:     env.ID,
		AffectedWorkflows: affected,
	})

	return incident, nil
}

func (e *Engine) closeIncident(ctx context.Context, incident *models.DriftIncident, reason string) error {
	if !incident.Status.CanTransition(models.DriftStatusClosed) {
		return fmt.Errorf("cannot close incident %s in status %s", incident.ID, incident.Status)
	}

	closed := e.now().UTC()
	incident.Status = models.DriftStatusClosed
	incident.ClosedAt = &closed

	err := e.incidents.Save(ctx, incident)
	if err != nil {
		return fmt.Errorf("failed to close incident: %w", err)
	}

	e.logger.InfoContext(ctx, "Drift incident closed",
		"incident_id", incident.ID, "environment_id", incident.EnvironmentID, "reason", reason)
	e.publish(ctx, incident.TenantID, events.DriftClosed{
		BaseEvent:     e.baseEvent(events.DriftClosedEvent, incident.TenantID),
		IncidentID:    incident.ID,
		EnvironmentID: incident.EnvironmentID,
		Reason:        reason,
	})

	return nil
}

// markMissing flags mappings whose runtime workflow disappeared.
func (e *Engine) markMissing(ctx context.Context, env *models.Environment, entries []verification.DriftEntry) {
	for _, entry := range entries {
		if !entry.Missing {
			continue
		}

		mapping, err := e.mappings.GetByRuntimeID(ctx, env.ID, entry.RuntimeID)
		if err != nil {
			continue
		}

		mapping.Status = models.MappingStatusMissing

		err = e.mappings.Save(ctx, mapping)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to mark mapping missing",
				"environment_id", env.ID, "runtime_id", entry.RuntimeID, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish drift event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, tenantID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: e.now().UTC(),
		TenantID:  tenantID,
	}
}

func severityFor(drifting, tracked int) models.DriftSeverity {
	switch {
	case tracked > 0 && drifting*2 >= tracked:
		return models.DriftSeverityCritical
	case drifting > 5:
		return models.DriftSeverityHigh
	case drifting > 1:
		return models.DriftSeverityMedium
	default:
		return models.DriftSeverityLow
	}
}
