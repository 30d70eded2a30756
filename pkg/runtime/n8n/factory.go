package n8n

import (
	"errors"
	"log/slog"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/runtime"
)

var (
	ErrMissingBaseURL = errors.New("n8n adapter requires 'base_url' in environment config")
	ErrMissingAPIKey  = errors.New("n8n adapter requires 'api_key' in environment config")
)

// Factory builds n8n adapters from per-environment connection config.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates the n8n adapter factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (f *Factory) ID() string {
	return "n8n"
}

func (f *Factory) Create(_ *models.Environment, config map[string]any) (runtime.Adapter, error) {
	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return NewAdapter(f.logger, baseURL, apiKey), nil
}
