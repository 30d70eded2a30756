// Package deployer applies workflow definitions to a live runtime with
// per-item error isolation: one bad workflow never aborts the batch.
package deployer

import (
	"context"
	"log/slog"

	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/runtime"
)

// ItemStatus is the tagged outcome of deploying one workflow.
type ItemStatus string

const (
	ItemStatusCreated ItemStatus = "created"
	ItemStatusUpdated ItemStatus = "updated"
	ItemStatusSkipped ItemStatus = "skipped" // Target already holds identical content
	ItemStatusFailed  ItemStatus = "failed"
)

// Item is one workflow selected for deployment. Items are processed in
// slice order.
type Item struct {
	Key        string         // Workflow key within the snapshot
	RuntimeID  string         // Target runtime id when known, empty forces create
	Definition map[string]any // Raw definition to apply
}

// ItemResult records the outcome for one item.
type ItemResult struct {
	Key       string     `json:"key"`
	RuntimeID string     `json:"runtime_id,omitempty"`
	Status    ItemStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

// Result aggregates a deploy batch.
type Result struct {
	Deployed int          `json:"deployed"` // created + updated
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
	Items    []ItemResult `json:"items"`
}

// AllFailed reports whether nothing succeeded while at least one item
// failed. Callers must not advance the environment pointer in that case.
func (r *Result) AllFailed() bool {
	return r.Deployed == 0 && r.Skipped == 0 && r.Failed > 0
}

// PartialFailure reports whether some items succeeded and some failed. The
// promotion path treats this as failure requiring rollback; bulk operations
// may accept it as best-effort.
func (r *Result) PartialFailure() bool {
	return r.Failed > 0 && (r.Deployed > 0 || r.Skipped > 0)
}

// CreatedRuntimeIDs returns the runtime ids of workflows this batch created,
// in item order. The rollback path deletes exactly these.
func (r *Result) CreatedRuntimeIDs() []string {
	ids := make([]string, 0)

	for _, item := range r.Items {
		if item.Status == ItemStatusCreated && item.RuntimeID != "" {
			ids = append(ids, item.RuntimeID)
		}
	}

	return ids
}

// Deployer applies workflow definitions through a runtime adapter.
type Deployer struct {
	logger *slog.Logger
}

// NewDeployer creates a deployer.
func NewDeployer(logger *slog.Logger) *Deployer {
	return &Deployer{logger: logger.With("module", "deployer")}
}

// Deploy applies each item in order: identical content is skipped, known ids
// are updated, unknown ids fall back to create. Each item succeeds or fails
// independently; the batch always runs to completion.
func (d *Deployer) Deploy(ctx context.Context, adapter runtime.Adapter, items []Item) *Result {
	result := &Result{Items: make([]ItemResult, 0, len(items))}

	for _, item := range items {
		result.Items = append(result.Items, d.deployItem(ctx, adapter, item))
	}

	for _, item := range result.Items {
		switch item.Status {
		case ItemStatusCreated, ItemStatusUpdated:
			result.Deployed++
		case ItemStatusSkipped:
			result.Skipped++
		case ItemStatusFailed:
			result.Failed++
		}
	}

	return result
}

// DeployForRollback behaves identically to Deploy: rollback is the same
// primitive applied to older snapshot content.
func (d *Deployer) DeployForRollback(ctx context.Context, adapter runtime.Adapter, items []Item) *Result {
	return d.Deploy(ctx, adapter, items)
}

// DeleteWorkflows removes the given runtime ids, best effort. Used as the
// compensating action after a partial promotion failure.
func (d *Deployer) DeleteWorkflows(ctx context.Context, adapter runtime.Adapter, ids []string) (int, []string) {
	deleted := 0
	errs := make([]string, 0)

	for _, id := range ids {
		err := adapter.DeleteWorkflow(ctx, id)
		if err != nil {
			d.logger.WarnContext(ctx, "Failed to delete workflow during rollback", "runtime_id", id, "error", err)
			errs = append(errs, err.Error())

			continue
		}

		deleted++
	}

	return deleted, errs
}

func (d *Deployer) deployItem(ctx context.Context, adapter runtime.Adapter, item Item) ItemResult {
	if item.RuntimeID == "" {
		return d.createItem(ctx, adapter, item)
	}

	existing, err := adapter.GetWorkflow(ctx, item.RuntimeID)
	if err != nil && !runtime.IsWorkflowNotFound(err) {
		return ItemResult{Key: item.Key, RuntimeID: item.RuntimeID, Status: ItemStatusFailed, Error: err.Error()}
	}

	if existing != nil {
		same, hashErr := sameContent(existing, item.Definition)
		if hashErr == nil && same {
			d.logger.WarnContext(ctx, "Workflow content unchanged in target, skipping",
				"key", item.Key, "runtime_id", item.RuntimeID)

			return ItemResult{Key: item.Key, RuntimeID: item.RuntimeID, Status: ItemStatusSkipped}
		}
	}

	err = adapter.UpdateWorkflow(ctx, item.RuntimeID, item.Definition)
	if err == nil {
		return ItemResult{Key: item.Key, RuntimeID: item.RuntimeID, Status: ItemStatusUpdated}
	}

	if runtime.IsWorkflowNotFound(err) {
		// The mapping pointed at a stale id; explicit fallback to create.
		return d.createItem(ctx, adapter, item)
	}

	return ItemResult{Key: item.Key, RuntimeID: item.RuntimeID, Status: ItemStatusFailed, Error: err.Error()}
}

func (d *Deployer) createItem(ctx context.Context, adapter runtime.Adapter, item Item) ItemResult {
	id, err := adapter.CreateWorkflow(ctx, item.Definition)
	if err != nil {
		return ItemResult{Key: item.Key, Status: ItemStatusFailed, Error: err.Error()}
	}

	return ItemResult{Key: item.Key, RuntimeID: id, Status: ItemStatusCreated}
}

func sameContent(left, right map[string]any) (bool, error) {
	leftHash, err := fingerprint.HashRaw(left)
	if err != nil {
		return false, err
	}

	rightHash, err := fingerprint.HashRaw(right)
	if err != nil {
		return false, err
	}

	return leftHash == rightHash, nil
}
