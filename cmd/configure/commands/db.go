package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/flowstate/internal/config"
	"github.com/benvon/flowstate/internal/database"
)

// openDatabase loads configuration, connects and ensures the schema exists.
// The returned close func logs rather than returns its error.
func openDatabase(ctx context.Context) (*config.Config, *database.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return cfg, db, closeFn, nil
}

// stateRepositories returns the snapshot and rollup repositories over db
func stateRepositories(db *database.DB) (database.SnapshotRepositoryInterface, database.TagStatisticsRepositoryInterface) {
	return database.NewSnapshotRepository(db), database.NewTagStatisticsRepository(db)
}
