package services

import (
	"context"
	"errors"

	"github.com/dukex/promion/pkg/models"
)

// ErrEnvironmentNotFound is returned when an environment id is unknown.
var ErrEnvironmentNotFound = errors.New("environment not found")

// Entry pairs an environment with the connection configuration its runtime
// adapter needs.
type Entry struct {
	Environment *models.Environment
	Config      map[string]any
}

// EnvironmentDirectory resolves environment ids to their definitions and
// runtime connection configuration.
type EnvironmentDirectory interface {
	GetEnvironment(ctx context.Context, environmentID string) (*Entry, error)
}

// StaticDirectory is an EnvironmentDirectory backed by an in-memory map,
// keyed by environment id.
type StaticDirectory map[string]*Entry

func (d StaticDirectory) GetEnvironment(_ context.Context, environmentID string) (*Entry, error) {
	entry, ok := d[environmentID]
	if !ok {
		return nil, ErrEnvironmentNotFound
	}

	return entry, nil
}
