package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/ingest"
	"github.com/riot-match-ingestor/internal/memstore"
	"github.com/riot-match-ingestor/internal/postgres"
	"github.com/riot-match-ingestor/internal/sqlite"
)

// store is the persistence backend a command runs against
type store interface {
	ingest.Store
	ingest.Counter
}

// tableLister is implemented by backends that can report their schema
type tableLister interface {
	Tables(ctx context.Context) (map[string]bool, error)
}

// openStore connects the configured backend and brings its schema up to
// date. The returned func releases the backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return repo, repo.Close, nil

	case config.DriverSQLite:
		logger.Info("opening SQLite store", "path", cfg.Store.SQLitePath)
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close SQLite store", "error", err)
			}
		}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store, nothing will be persisted")
		return memstore.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
