// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/promion/pkg/runtime"
	"github.com/dukex/promion/pkg/runtime/n8n"
)

// NewRegistry creates the runtime adapter registry with the native provider
// factories registered.
func NewRegistry(logger *slog.Logger) *runtime.Registry {
	reg := runtime.NewRegistry(logger)
	reg.RegisterFactory(n8n.NewFactory(logger))

	return reg
}
