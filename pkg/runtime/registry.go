package runtime

import (
	"fmt"
	"log/slog"

	"github.com/dukex/promion/pkg/models"
)

// AdapterFactory builds an adapter for one concrete environment from its
// connection configuration.
type AdapterFactory interface {
	ID() string
	Create(env *models.Environment, config map[string]any) (Adapter, error)
}

// Registry dispatches environments to adapter implementations keyed by
// provider name. Plain map dispatch, no reflection.
type Registry struct {
	logger    *slog.Logger
	factories map[string]AdapterFactory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]AdapterFactory),
	}
}

// RegisterFactory adds a provider factory, replacing any previous one with
// the same id.
func (r *Registry) RegisterFactory(factory AdapterFactory) {
	r.factories[factory.ID()] = factory
}

// CreateAdapter builds an adapter for the environment's provider.
func (r *Registry) CreateAdapter(env *models.Environment, config map[string]any) (Adapter, error) {
	factory, ok := r.factories[env.Provider]
	if !ok {
		return nil, fmt.Errorf("runtime provider '%s' not registered", env.Provider)
	}

	return factory.Create(env, config)
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}
