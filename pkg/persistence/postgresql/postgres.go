// Package postgresql provides PostgreSQL persistence for promotion records,
// drift incidents, workflow mappings, approvals and retention records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/promion/pkg/persistence"
	"github.com/dukex/promion/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	promotionRepo *PromotionRepository
	incidentRepo  *IncidentRepository
	mappingRepo   *MappingRepository
	approvalRepo  *ApprovalRepository
	retentionRepo *RetentionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		promotionRepo: NewPromotionRepository(database, logger),
		incidentRepo:  NewIncidentRepository(database, logger),
		mappingRepo:   NewMappingRepository(database, logger),
		approvalRepo:  NewApprovalRepository(database, logger),
		retentionRepo: NewRetentionRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

func (p *Persistence) PromotionRepository() persistence.PromotionRepository {
	return p.promotionRepo
}

func (p *Persistence) IncidentRepository() persistence.IncidentRepository {
	return p.incidentRepo
}

func (p *Persistence) MappingRepository() persistence.MappingRepository {
	return p.mappingRepo
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvalRepo
}

func (p *Persistence) RetentionRepository() persistence.RetentionRepository {
	return p.retentionRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
