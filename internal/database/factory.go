package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cs-go/internal/config"
	"cs-go/internal/cs"
	"cs-go/internal/model"
)

// MemoryName selects an in-memory database instead of a file.
const MemoryName = ":memory:"

// NewDatabaseFromConfig opens the record store named by db_name. A relative
// name is resolved against the working directory.
func NewDatabaseFromConfig(cfg *config.Config) (cs.Database, error) {
	if cfg.DBName == "" {
		return nil, &cs.ConfigurationError{Key: "db_name", Reason: "required"}
	}

	registry, err := model.NewRegistry()
	if err != nil {
		return nil, &cs.ConfigurationError{Key: "schema", Err: err}
	}

	path := cfg.DBName
	if path != MemoryName {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}

	db, err := NewSQLiteDatabase(path, registry)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	return nil
}
