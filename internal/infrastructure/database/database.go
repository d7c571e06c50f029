package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute
)

// DB wraps a sql.DB connection with migration support, health checks,
// and lifecycle management.
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging so event reads (history,
	// correlation queries) don't block the ingestion write path.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open creates a new database connection with the specified configuration.
//
// The database file and its directory are created on first use. Foreign
// keys are enabled and WAL mode is applied when configured.
func Open(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Connection string pragmas:
	// see https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports one writer; keep a single connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{
		DB:   sqlDB,
		path: cfg.Path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// File might not exist until first write; permission set is best-effort.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // First run creates file later

	return db, nil
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database is accessible.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// ExecContext executes a query that doesn't return rows with consistent
// error wrapping.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// QueryRowContext executes a query that returns at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a new transaction with the given options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
