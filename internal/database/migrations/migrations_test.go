package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestUp_CreatesTables(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	for _, table := range []string{"courses", "folders", "files", "external_links", "sync_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := Status(db)
	if !errors.Is(err, ErrNotMigrated) {
		t.Errorf("Status() error = %v, want ErrNotMigrated", err)
	}
}

func TestStatus_AfterUp(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := Status(db); err != nil {
		t.Errorf("Status() after Up() error = %v", err)
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() error = %v", err)
	}
	if err := Status(db); err != nil {
		t.Errorf("Status() error = %v", err)
	}
}

func TestLatest(t *testing.T) {
	v, err := Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if v != 2 {
		t.Errorf("Latest() = %d, want 2", v)
	}
}

func TestSchema_IDIsPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	if _, err := db.Exec("INSERT INTO courses (id, name) VALUES (1, 'a')"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if _, err := db.Exec("INSERT INTO courses (id, name) VALUES (1, 'b')"); err == nil {
		t.Error("expected primary key violation for duplicate id")
	}
}

// openTestDB opens an in-memory SQLite database on a single connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
