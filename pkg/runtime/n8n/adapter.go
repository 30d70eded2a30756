// Package n8n implements the runtime adapter over the n8n public REST API.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/promion/pkg/runtime"
)

const (
	defaultTimeoutSeconds = 30
	apiPrefix             = "/api/v1"
)

// Adapter talks to one n8n instance.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewAdapter creates an adapter for the given n8n base URL and API key.
func NewAdapter(logger *slog.Logger, baseURL, apiKey string) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:  logger.With("module", "n8n_adapter"),
	}
}

func (a *Adapter) TestConnection(ctx context.Context) (bool, error) {
	var response struct {
		Data []json.RawMessage `json:"data"`
	}

	err := a.do(ctx, http.MethodGet, "/workflows?limit=1", nil, &response)
	if err != nil {
		return false, fmt.Errorf("%w: %w", runtime.ErrConnectionFailed, err)
	}

	return true, nil
}

func (a *Adapter) GetWorkflows(ctx context.Context) ([]runtime.WorkflowSummary, error) {
	var response struct {
		Data []struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			Active    bool      `json:"active"`
			UpdatedAt time.Time `json:"updatedAt"`
		} `json:"data"`
	}

	err := a.do(ctx, http.MethodGet, "/workflows", nil, &response)
	if err != nil {
		return nil, err
	}

	summaries := make([]runtime.WorkflowSummary, 0, len(response.Data))
	for _, wf := range response.Data {
		summaries = append(summaries, runtime.WorkflowSummary{
			ID:        wf.ID,
			Name:      wf.Name,
			Active:    wf.Active,
			UpdatedAt: wf.UpdatedAt,
		})
	}

	return summaries, nil
}

func (a *Adapter) GetWorkflow(ctx context.Context, id string) (map[string]any, error) {
	var definition map[string]any

	err := a.do(ctx, http.MethodGet, "/workflows/"+id, nil, &definition)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

func (a *Adapter) CreateWorkflow(ctx context.Context, definition map[string]any) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := a.do(ctx, http.MethodPost, "/workflows", definition, &created)
	if err != nil {
		return "", err
	}

	if created.ID == "" {
		return "", fmt.Errorf("n8n create response carried no workflow id")
	}

	return created.ID, nil
}

func (a *Adapter) UpdateWorkflow(ctx context.Context, id string, definition map[string]any) error {
	return a.do(ctx, http.MethodPut, "/workflows/"+id, definition, nil)
}

func (a *Adapter) DeleteWorkflow(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/workflows/"+id, nil, nil)
}

func (a *Adapter) GetCredentials(ctx context.Context) ([]runtime.CredentialRef, error) {
	var response struct {
		Data []runtime.CredentialRef `json:"data"`
	}

	err := a.do(ctx, http.MethodGet, "/credentials", nil, &response)
	if err != nil {
		return nil, err
	}

	return response.Data, nil
}

func (a *Adapter) GetExecutions(ctx context.Context, limit int) ([]runtime.ExecutionSummary, error) {
	var response struct {
		Data []struct {
			ID         string     `json:"id"`
			WorkflowID string     `json:"workflowId"`
			Status     string     `json:"status"`
			StartedAt  time.Time  `json:"startedAt"`
			StoppedAt  *time.Time `json:"stoppedAt"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/executions?limit=%d", limit)

	err := a.do(ctx, http.MethodGet, path, nil, &response)
	if err != nil {
		return nil, err
	}

	executions := make([]runtime.ExecutionSummary, 0, len(response.Data))
	for _, ex := range response.Data {
		executions = append(executions, runtime.ExecutionSummary{
			ID:         ex.ID,
			WorkflowID: ex.WorkflowID,
			Status:     ex.Status,
			StartedAt:  ex.StartedAt,
			FinishedAt: ex.StoppedAt,
		})
	}

	return executions, nil
}

func (a *Adapter) GetUsers(ctx context.Context) ([]runtime.UserRef, error) {
	var response struct {
		Data []runtime.UserRef `json:"data"`
	}

	err := a.do(ctx, http.MethodGet, "/users", nil, &response)
	if err != nil {
		return nil, err
	}

	return response.Data, nil
}

func (a *Adapter) GetTags(ctx context.Context) ([]runtime.TagRef, error) {
	var response struct {
		Data []runtime.TagRef `json:"data"`
	}

	err := a.do(ctx, http.MethodGet, "/tags", nil, &response)
	if err != nil {
		return nil, err
	}

	return response.Data, nil
}

// do performs one API call. A nil out skips response decoding; 404 maps to
// runtime.ErrWorkflowNotFound so the deployer can fall back to create.
func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("X-N8N-API-KEY", a.apiKey)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("n8n request failed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			a.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, runtime.ErrWorkflowNotFound)
	}

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("n8n returned status %d for %s %s: %s", resp.StatusCode, method, path, string(detail))
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode n8n response: %w", err)
	}

	return nil
}
