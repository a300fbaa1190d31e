// Package backend assembles the persistence layer from configuration.
package backend

import (
	"fmt"

	"paghetta/internal/config"
	"paghetta/internal/log"
	"paghetta/internal/services"
	"paghetta/internal/storage"
)

// The stores live in a package that stays free of the services port, so
// their conformance is pinned here where both sides meet.
var (
	_ services.Store = (*storage.MemoryStore)(nil)
	_ services.Store = (*storage.SQLiteRepository)(nil)
)

// Result bundles the assembled store with its cleanup function.
type Result struct {
	Store   services.Store
	Cleanup func() error
}

// Open builds the store named by the configuration. When the fallback
// cache is enabled the SQLite store is wrapped so reads survive a
// temporarily unreachable database.
func Open(cfg *config.Config, logger *log.Logger) (*Result, error) {
	switch cfg.DataBackend {
	case "memory":
		logger.Info("Initialized memory store")
		return &Result{
			Store:   storage.NewMemoryStore(),
			Cleanup: func() error { return nil },
		}, nil

	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}

		var store services.Store = repo
		cleanup := repo.Close
		if cfg.FallbackCache {
			fallback, err := NewFallbackStore(repo)
			if err != nil {
				repo.Close()
				return nil, err
			}
			store = fallback
			cleanup = fallback.Close
		}

		logger.Info("Initialized sqlite store",
			"db_path", cfg.SQLiteDBPath,
			"fallback_cache", cfg.FallbackCache)
		return &Result{Store: store, Cleanup: cleanup}, nil

	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}
