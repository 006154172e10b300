// Package db provides SQL persistence for leads, interactions and accounts.
// SQLite (modernc) is the default; postgres is supported through lib/pq.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB wraps the SQL database connection.
type DB struct {
	*sqlx.DB
	driver string
}

// Open opens or creates the database described by driver and dsn and runs
// migrations. For sqlite the dsn is a file path.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case "", DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	// Ensure directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	sqlDB, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	d := &DB{DB: sqlx.NewDb(sqlDB, DriverSQLite), driver: DriverSQLite}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

func openPostgres(dsn string) (*DB, error) {
	x, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := x.Ping(); err != nil {
		x.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	d := &DB{DB: x, driver: DriverPostgres}
	if err := d.migrate(); err != nil {
		x.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

// Driver returns the database driver name.
func (d *DB) Driver() string {
	return d.driver
}

// migrate runs database migrations.
func (d *DB) migrate() error {
	// Create migrations table
	_, err := d.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var version int
	if err := d.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}

		stmt := m.sqlite
		if d.driver == DriverPostgres {
			stmt = m.postgres
		}
		if strings.TrimSpace(stmt) != "" {
			if _, err := d.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}

		if _, err := d.Exec(d.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.DB.Close()
}
