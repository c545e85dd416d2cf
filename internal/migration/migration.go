package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const ledgerMigrationsTable = "console_schema_migrations"

// Result reports where the ledger schema ended up after Up.
type Result struct {
	Version uint
	Applied bool
}

// Up brings the ledger schema on db to the newest embedded version. A schema
// left dirty by an interrupted run is reported, never forced.
func Up(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration database handle is required")
	}

	m, err := newMigrator(db)
	if err != nil {
		return Result{}, err
	}
	// m.Close would close the shared *sql.DB.

	before, _, err := version(m)
	if err != nil {
		return Result{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Result{}, fmt.Errorf("apply ledger migrations: %w", err)
	}

	after, dirty, err := version(m)
	if err != nil {
		return Result{}, err
	}
	if dirty {
		return Result{Version: after}, fmt.Errorf("ledger schema is dirty at version %d", after)
	}
	return Result{Version: after, Applied: after != before}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: ledgerMigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read ledger schema version: %w", err)
	}
	return v, dirty, nil
}
