package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/liftlog/config"
	"github.com/jmcleod/liftlog/storage"
	bboltstorage "github.com/jmcleod/liftlog/storage/bbolt"
	"github.com/jmcleod/liftlog/storage/memory"
	"github.com/jmcleod/liftlog/storage/postgres"
)

const boltFileName = "liftlog.db"

// openRepository opens the storage backend selected by cfg. Postgres
// migrations are applied on open.
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.NewRepository(), nil
	case config.DriverBBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path := filepath.Join(cfg.DataDir, boltFileName)
		repo, err := bboltstorage.NewRepositoryFromFile(path, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return repo, nil
	case config.DriverPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
