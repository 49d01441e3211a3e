// Package db owns the schema: SQL migrations embedded in the binary and the helpers that apply them.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator is the subset of *migrate.Migrate the tooling uses.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

// These factories are overridden in tests to avoid requiring a real Postgres database connection.
var withPostgresInstance = func(db *sql.DB) (migratedb.Driver, error) {
	return postgres.WithInstance(db, &postgres.Config{})
}

var newMigrateWithInstance = func(src source.Driver, driver migratedb.Driver) (Migrator, error) {
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

// NewMigrator builds a migrator over the embedded migrations for db.
func NewMigrator(db *sql.DB) (Migrator, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := withPostgresInstance(db)
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := newMigrateWithInstance(src, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// Apply moves the schema in direction ("up" or "down"). steps=0 means all the way.
func Apply(m Migrator, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("invalid direction: %s (must be 'up' or 'down')", direction)
	}
}

// Migrate applies direction/steps against db. migrate.ErrNoChange is passed through so callers
// can tell a no-op apart.
func Migrate(db *sql.DB, direction string, steps int) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	return Apply(m, direction, steps)
}

// MigrateUp is the startup hook: it applies every pending migration and reports whether anything ran.
func MigrateUp(db *sql.DB) (bool, error) {
	err := Migrate(db, "up", 0)
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// State is where the schema stands. Fresh means no migration has ever been applied.
type State struct {
	Version uint
	Dirty   bool
	Fresh   bool
}

// ReadState reports the current schema version.
func ReadState(m Migrator) (State, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return State{Fresh: true}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read migration version: %w", err)
	}
	return State{Version: v, Dirty: dirty}, nil
}

// Repair clears a dirty flag left by a failed migration by pinning the current version.
// repaired is false on a clean schema, where nothing is written.
func Repair(m Migrator) (st State, repaired bool, err error) {
	st, err = ReadState(m)
	if err != nil || !st.Dirty {
		return st, false, err
	}
	if err := m.Force(int(st.Version)); err != nil {
		return st, false, fmt.Errorf("force dirty version %d: %w", st.Version, err)
	}
	st.Dirty = false
	return st, true, nil
}
