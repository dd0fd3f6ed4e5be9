// Package migrations creates and upgrades the record store schema from
// embedded SQL files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

// ErrNotMigrated is returned by Status for a database without a schema version.
var ErrNotMigrated = errors.New("database has no schema version (needs migration)")

// Up applies every pending migration. An up-to-date database is not an error.
// The caller keeps ownership of db.
func Up(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Status returns nil when db is at the latest embedded version.
func Status(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return ErrNotMigrated
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d", version)
	}

	latest, err := Latest()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d, latest is %d", version, latest)
	case version > latest:
		return fmt.Errorf("database version %d is newer than this binary (%d)", version, latest)
	}
	return nil
}

// Latest returns the highest embedded migration version.
func Latest() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}

// open builds a migrate instance over db. It is never closed because
// closing it would close db.
func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}
