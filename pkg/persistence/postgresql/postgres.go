// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	definitions *DefinitionRepository
	executions  *ExecutionRepository
	approvals   *ApprovalRepository
	timers      *TimerRepository
	schedules   *ScheduleRepository
}

// NewPersistence connects, runs migrations and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		definitions: &DefinitionRepository{db: database},
		executions:  &ExecutionRepository{db: database},
		approvals:   &ApprovalRepository{db: database},
		timers:      &TimerRepository{db: database},
		schedules:   &ScheduleRepository{db: database},
	}, nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Executions() persistence.ExecutionRepository   { return p.executions }
func (p *Persistence) Approvals() persistence.ApprovalRepository     { return p.approvals }
func (p *Persistence) Timers() persistence.TimerRepository           { return p.timers }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.schedules }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
