package database

import (
	"fmt"
	"os"
	"path/filepath"

	"kaloriq-go/internal/config"
)

// HealthDBName is the file name of the health database inside data_dir.
const HealthDBName = "health.db"

// NewHealthStoreFromConfig creates a health store based on the config type.
// In-memory stores are migrated immediately; file stores are left as found so
// the caller can check their schema version.
func NewHealthStoreFromConfig(cfg config.HealthStoreConfig) (*SQLiteHealthStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite health store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteHealthStore(filepath.Join(cfg.DataDir, HealthDBName), !cfg.Unavailable)
	case "memory":
		s, err := NewSQLiteHealthStore(":memory:", !cfg.Unavailable)
		if err != nil {
			return nil, err
		}
		if err := s.MigrateUp(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating in-memory health store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown health store type: %s", cfg.Type)
	}
}
