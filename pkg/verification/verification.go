// Package verification compares live runtime state against snapshots
// (post-deploy verification) and against Git (drift detection).
package verification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/runtime"
)

// Mismatch is one workflow whose live content diverges from the snapshot.
type Mismatch struct {
	Key          string `json:"key"`
	RuntimeID    string `json:"runtime_id,omitempty"`
	ExpectedHash string `json:"expected_hash"`
	ObservedHash string `json:"observed_hash,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Result is the outcome of a post-deploy verification.
type Result struct {
	Matches    bool       `json:"matches"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// DriftEntry is one linked workflow whose runtime content diverges from the
// hash recorded in Git.
type DriftEntry struct {
	CanonicalID  string `json:"canonical_id"`
	RuntimeID    string `json:"runtime_id"`
	WorkflowName string `json:"workflow_name,omitempty"`
	GitHash      string `json:"git_hash"`
	RuntimeHash  string `json:"runtime_hash,omitempty"`
	Missing      bool   `json:"missing"` // Workflow no longer present in the runtime
}

// Engine performs fingerprint comparisons between runtime and desired state.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a verification engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger.With("module", "verification")}
}

// VerifyDeployment compares each snapshot workflow's content hash to the
// corresponding live runtime workflow. Mismatches are reported, not fatal:
// at this point the pointer update is the only remaining promotion step and
// remote eventual consistency must not leave the environment pointer-less.
func (e *Engine) VerifyDeployment(ctx context.Context, adapter runtime.Adapter, workflows map[string]map[string]any, runtimeIDs map[string]string) (*Result, error) {
	result := &Result{Matches: true}

	for key, desired := range workflows {
		result.Checked++

		expected, err := fingerprint.HashRaw(desired)
		if err != nil {
			return nil, fmt.Errorf("failed to hash snapshot workflow %s: %w", key, err)
		}

		runtimeID := runtimeIDs[key]
		if runtimeID == "" {
			result.Matches = false
			result.Mismatches = append(result.Mismatches, Mismatch{
				Key: key, ExpectedHash: expected, Detail: "no runtime id recorded for workflow",
			})

			continue
		}

		observed, err := adapter.GetWorkflow(ctx, runtimeID)
		if err != nil {
			result.Matches = false
			result.Mismatches = append(result.Mismatches, Mismatch{
				Key: key, RuntimeID: runtimeID, ExpectedHash: expected, Detail: err.Error(),
			})

			continue
		}

		observedHash, err := fingerprint.HashRaw(observed)
		if err != nil {
			return nil, fmt.Errorf("failed to hash runtime workflow %s: %w", key, err)
		}

		if observedHash != expected {
			result.Matches = false
			result.Mismatches = append(result.Mismatches, Mismatch{
				Key: key, RuntimeID: runtimeID, ExpectedHash: expected, ObservedHash: observedHash,
			})
		}
	}

	for _, mismatch := range result.Mismatches {
		e.logger.WarnContext(ctx, "Deployment verification mismatch",
			"key", mismatch.Key,
			"runtime_id", mismatch.RuntimeID,
			"detail", mismatch.Detail,
		)
	}

	return result, nil
}

// DetectDrift compares the live runtime content of each linked mapping
// against the content hash recorded in Git. Development environments have no
// drift concept: their runtime is authoritative.
func (e *Engine) DetectDrift(ctx context.Context, env *models.Environment, adapter runtime.Adapter, mappings []*models.WorkflowEnvironmentMapping) ([]DriftEntry, error) {
	if !env.TracksDrift() {
		return nil, nil
	}

	entries := make([]DriftEntry, 0)

	for _, mapping := range mappings {
		if mapping.Status != models.MappingStatusLinked {
			continue
		}

		live, err := adapter.GetWorkflow(ctx, mapping.RuntimeWorkflowID)
		if err != nil {
			if runtime.IsWorkflowNotFound(err) {
				entries = append(entries, DriftEntry{
					CanonicalID:  mapping.CanonicalID,
					RuntimeID:    mapping.RuntimeWorkflowID,
					WorkflowName: mapping.WorkflowName,
					GitHash:      mapping.EnvContentHash,
					Missing:      true,
				})

				continue
			}

			return nil, fmt.Errorf("failed to fetch workflow %s: %w", mapping.RuntimeWorkflowID, err)
		}

		liveHash, err := fingerprint.HashRaw(live)
		if err != nil {
			return nil, fmt.Errorf("failed to hash workflow %s: %w", mapping.RuntimeWorkflowID, err)
		}

		if liveHash != mapping.EnvContentHash {
			entries = append(entries, DriftEntry{
				CanonicalID:  mapping.CanonicalID,
				RuntimeID:    mapping.RuntimeWorkflowID,
				WorkflowName: mapping.WorkflowName,
				GitHash:      mapping.EnvContentHash,
				RuntimeHash:  liveHash,
			})
		}
	}

	if len(entries) > 0 {
		e.logger.InfoContext(ctx, "Drift detected", "env", env.ID, "workflows", len(entries))
	}

	return entries, nil
}
