// Package mocks provides testify mock implementations of the promotion
// core's collaborator interfaces.
package mocks

import (
	"context"

	"github.com/dukex/promion/pkg/runtime"
	"github.com/stretchr/testify/mock"
)

// MockRuntimeAdapter is a mock implementation of the runtime.Adapter
// interface.
type MockRuntimeAdapter struct {
	mock.Mock
}

func (m *MockRuntimeAdapter) TestConnection(ctx context.Context) (bool, error) {
	args := m.Called(ctx)

	return args.Bool(0), args.Error(1)
}

func (m *MockRuntimeAdapter) GetWorkflows(ctx context.Context) ([]runtime.WorkflowSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]runtime.WorkflowSummary), args.Error(1)
}

func (m *MockRuntimeAdapter) GetWorkflow(ctx context.Context, id string) (map[string]any, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockRuntimeAdapter) CreateWorkflow(ctx context.Context, definition map[string]any) (string, error) {
	args := m.Called(ctx, definition)

	return args.String(0), args.Error(1)
}

func (m *MockRuntimeAdapter) UpdateWorkflow(ctx context.Context, id string, definition map[string]any) error {
	args := m.Called(ctx, id, definition)

	return args.Error(0)
}

func (m *MockRuntimeAdapter) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockRuntimeAdapter) GetCredentials(ctx context.Context) ([]runtime.CredentialRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]runtime.CredentialRef), args.Error(1)
}

func (m *MockRuntimeAdapter) GetExecutions(ctx context.Context, limit int) ([]runtime.ExecutionSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]runtime.ExecutionSummary), args.Error(1)
}

func (m *MockRuntimeAdapter) GetUsers(ctx context.Context) ([]runtime.UserRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]runtime.UserRef), args.Error(1)
}

func (m *MockRuntimeAdapter) GetTags(ctx context.Context) ([]runtime.TagRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]runtime.TagRef), args.Error(1)
}
