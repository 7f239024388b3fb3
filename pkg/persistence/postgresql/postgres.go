// Package postgresql provides PostgreSQL persistence for inbound events.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/persistence/sqlbase"
)

const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Persistence is the event store backed by PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	*EventRepository
}

// NewPersistence opens the pool, verifies it and brings the events schema up
// to the latest migration.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	logger = logger.With("module", "postgresql")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to reach event store: %w", err)
	}

	manager := sqlbase.NewMigrationManager(logger, db, migrations())
	if err := manager.RunMigrations(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to migrate event store: %w", err)
	}

	logger.InfoContext(ctx, "Event store ready", "schema_version", manager.LatestVersion())

	return &Persistence{
		db:              db,
		logger:          logger,
		EventRepository: NewEventRepository(db, logger),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db == nil {
		return nil
	}

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close event store: %w", err)
	}

	return nil
}

// HealthCheck pings the pool; it backs the /health and /readyz endpoints.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("event store unreachable: %w", err)
	}

	return nil
}
