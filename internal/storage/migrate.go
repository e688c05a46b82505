package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies the migration set of the configured driver.
func RunMigrations(opts Options) error {
	// The migrate driver closes its connection when done, so it gets one
	// of its own rather than the service pool.
	var (
		migrateDB  *sql.DB
		err        error
		sourcePath string
		driverName string
	)

	switch opts.Driver {
	case DriverPostgres:
		cfg, err := pgx.ParseConfig(normalizeDatabaseURL(opts.DatabaseURL))
		if err != nil {
			return fmt.Errorf("parse database URL: %w", err)
		}
		migrateDB = stdlib.OpenDB(*cfg)
		sourcePath = "migrations/postgres"
		driverName = "pgx5"
	default:
		migrateDB, err = sql.Open("sqlite", sqliteDSN(opts.SQLitePath))
		if err != nil {
			return fmt.Errorf("open migration database: %w", err)
		}
		sourcePath = "migrations/sqlite"
		driverName = "sqlite"
	}
	defer migrateDB.Close()

	var m *migrate.Migrate
	d, err := iofs.New(migrationsFS, sourcePath)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	if opts.Driver == DriverPostgres {
		driver, err := migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
		if err != nil {
			return fmt.Errorf("create pgx driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, driverName, driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
	} else {
		driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, driverName, driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
