// Package testutil provides stateful fakes shared across test packages.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/promion/pkg/runtime"
)

// FakeRuntime is an in-memory runtime.Adapter with call counting, used where
// tests need live create/update/delete state rather than canned responses.
type FakeRuntime struct {
	mu        sync.Mutex
	workflows map[string]map[string]any
	nextID    int

	CreateCalls int
	UpdateCalls int
	DeleteCalls int

	// FailCreateFor makes CreateWorkflow fail for definitions whose "name"
	// matches one of the given values.
	FailCreateFor map[string]error
	// FailUpdateFor does the same for UpdateWorkflow by workflow id.
	FailUpdateFor map[string]error
}

// NewFakeRuntime creates an empty fake runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		workflows:     make(map[string]map[string]any),
		FailCreateFor: make(map[string]error),
		FailUpdateFor: make(map[string]error),
	}
}

// Seed installs a workflow under a fixed id without counting as a call.
func (f *FakeRuntime) Seed(id string, definition map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.workflows[id] = definition
}

// Workflows returns a copy of the current workflow map.
func (f *FakeRuntime) Workflows() map[string]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := make(map[string]map[string]any, len(f.workflows))
	for id, def := range f.workflows {
		copied[id] = def
	}

	return copied
}

func (f *FakeRuntime) TestConnection(_ context.Context) (bool, error) {
	return true, nil
}

func (f *FakeRuntime) GetWorkflows(_ context.Context) ([]runtime.WorkflowSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summaries := make([]runtime.WorkflowSummary, 0, len(f.workflows))
	for id, def := range f.workflows {
		name, _ := def["name"].(string)
		active, _ := def["active"].(bool)
		summaries = append(summaries, runtime.WorkflowSummary{ID: id, Name: name, Active: active})
	}

	return summaries, nil
}

func (f *FakeRuntime) GetWorkflow(_ context.Context, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	def, ok := f.workflows[id]
	if !ok {
		return nil, runtime.ErrWorkflowNotFound
	}

	return def, nil
}

func (f *FakeRuntime) CreateWorkflow(_ context.Context, definition map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++

	if name, ok := definition["name"].(string); ok {
		if err, failing := f.FailCreateFor[name]; failing {
			return "", err
		}
	}

	f.nextID++
	id := fmt.Sprintf("rt-%d", f.nextID)
	f.workflows[id] = definition

	return id, nil
}

func (f *FakeRuntime) UpdateWorkflow(_ context.Context, id string, definition map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.UpdateCalls++

	if err, failing := f.FailUpdateFor[id]; failing {
		return err
	}

	if _, ok := f.workflows[id]; !ok {
		return runtime.ErrWorkflowNotFound
	}

	f.workflows[id] = definition

	return nil
}

func (f *FakeRuntime) DeleteWorkflow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls++

	if _, ok := f.workflows[id]; !ok {
		return runtime.ErrWorkflowNotFound
	}

	delete(f.workflows, id)

	return nil
}

func (f *FakeRuntime) GetCredentials(_ context.Context) ([]runtime.CredentialRef, error) {
	return []runtime.CredentialRef{}, nil
}

func (f *FakeRuntime) GetExecutions(_ context.Context, _ int) ([]runtime.ExecutionSummary, error) {
	return []runtime.ExecutionSummary{}, nil
}

func (f *FakeRuntime) GetUsers(_ context.Context) ([]runtime.UserRef, error) {
	return []runtime.UserRef{}, nil
}

func (f *FakeRuntime) GetTags(_ context.Context) ([]runtime.TagRef, error) {
	return []runtime.TagRef{}, nil
}
