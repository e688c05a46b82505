package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver selects the relational backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrNotFound is returned by targeted mutations that matched no row owned
// by the user.
var ErrNotFound = errors.New("no row affected")

// Options configures Open.
type Options struct {
	Driver          Driver
	SQLitePath      string
	DatabaseURL     string
	MaxOpenConns    int
	ConnectAttempts int
	RetryDelay      time.Duration
}

// Store owns the connection pool. It is the only shared mutable resource
// of the service and is handed to every component explicitly.
type Store struct {
	db      *sql.DB
	driver  Driver
	queries *Queries
}

// Open connects to the configured backend, waits for it to answer, and
// applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sql.Open("sqlite", sqliteDSN(opts.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
	case DriverPostgres:
		cfg, err := pgx.ParseConfig(normalizeDatabaseURL(opts.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		db = stdlib.OpenDB(*cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	if err := waitForDatabase(ctx, db, opts); err != nil {
		db.Close()
		return nil, err
	}

	if err := RunMigrations(opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:      db,
		driver:  opts.Driver,
		queries: New(db, opts.Driver),
	}, nil
}

func waitForDatabase(ctx context.Context, db *sql.DB, opts Options) error {
	attempts := opts.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.WarnContext(ctx, "Database not ready, retrying",
			"driver", opts.Driver,
			"attempt", i+1,
			"max_attempts", attempts,
			"retry_in", delay.String(),
			"error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("ping database after %d attempts: %w", attempts, err)
}

// sqliteDSN enables foreign keys and takes the write lock at BEGIN so that
// concurrent transactions serialize instead of failing on upgrade.
func sqliteDSN(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// normalizeDatabaseURL accepts postgresql:// URLs and defaults sslmode to
// disable.
func normalizeDatabaseURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgresql://") {
		databaseURL = "postgres://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	if databaseURL != "" && !strings.Contains(databaseURL, "sslmode=") {
		separator := "?"
		if strings.Contains(databaseURL, "?") {
			separator = "&"
		}
		databaseURL += separator + "sslmode=disable"
	}
	return databaseURL
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the pool for health checks and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Driver() Driver {
	return s.driver
}

// Queries returns the autonomous (non-transactional) query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. fn's error is returned unchanged
// after rolling back; a panic rolls back and is re-raised. The connection
// goes back to the pool on every path.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(s.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
