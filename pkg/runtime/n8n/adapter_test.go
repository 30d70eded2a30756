package n8n

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAdapter(testLogger(), server.URL, "test-key")
}

func TestGetWorkflowSendsAPIKey(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-N8N-API-KEY"))
		assert.Equal(t, "/api/v1/workflows/wf-1", r.URL.Path)

		err := json.NewEncoder(w).Encode(map[string]any{"id": "wf-1", "name": "alpha"})
		require.NoError(t, err)
	})

	definition, err := adapter.GetWorkflow(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", definition["name"])
}

func TestGetWorkflowMapsNotFound(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := adapter.GetWorkflow(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, runtime.IsWorkflowNotFound(err))
}

func TestCreateWorkflowReturnsNewID(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var definition map[string]any

		err := json.NewDecoder(r.Body).Decode(&definition)
		require.NoError(t, err)
		assert.Equal(t, "alpha", definition["name"])

		err = json.NewEncoder(w).Encode(map[string]any{"id": "wf-9"})
		require.NoError(t, err)
	})

	id, err := adapter.CreateWorkflow(t.Context(), map[string]any{"name": "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "wf-9", id)
}

func TestServerErrorSurfacesStatusAndBody(t *testing.T) {
	adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	err := adapter.UpdateWorkflow(t.Context(), "wf-1", map[string]any{"name": "alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, runtime.IsWorkflowNotFound(err))
}

func TestFactoryRequiresConnectionConfig(t *testing.T) {
	factory := NewFactory(testLogger())
	env := &models.Environment{ID: "env-1", Provider: "n8n"}

	_, err := factory.Create(env, map[string]any{"api_key": "k"})
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	_, err = factory.Create(env, map[string]any{"base_url": "http://n8n.local"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	adapter, err := factory.Create(env, map[string]any{"base_url": "http://n8n.local", "api_key": "k"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}
