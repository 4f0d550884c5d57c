package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/predicate"
)

// Migrate applies the up migrations found in dir (NNN_name.up.sql files)
// and returns the resulting schema version.
func Migrate(db *sql.DB, dir string) (uint, error) {
	src, err := iofs.New(os.DirFS(dir), ".")
	if err != nil {
		return 0, fmt.Errorf("failed to create migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create database driver: %w", err)
	}

	// The migrate instance is not closed: that would close db, which the
	// caller owns.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// migrateUp runs the migrations in dir and optionally unifies the schema
// version.
func migrateUp(c *predicate.Context, db *sql.DB, dir string, version any) (bool, error) {
	v, err := Migrate(db, dir)
	if err != nil {
		return false, engine.NewHostError("sqlite migrate", err).WithDetail("dir", dir)
	}
	if version == nil {
		return true, nil
	}
	return c.Unify(version, int64(v))
}
