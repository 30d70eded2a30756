package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/persistence/file"
	"github.com/dukex/promion/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence backend from a database URL.
// postgres:// selects PostgreSQL; anything else is treated as a filesystem
// root (optionally prefixed with file://).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}
