package testutil

import (
	"testing"

	"cs-go/internal/cs"
	"cs-go/internal/database"
	"cs-go/internal/model"
)

// NewTestDatabase creates an in-memory record store with migrations applied.
// The database is closed when the test completes.
func NewTestDatabase(t *testing.T) cs.Database {
	t.Helper()

	registry, err := model.NewRegistry()
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	db, err := database.NewSQLiteDatabase(database.MemoryName, registry)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
