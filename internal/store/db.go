// Package store persists built snapshots in a per-repository SQLite
// database. The graph and the lexical index are written as rows with
// zstd-compressed JSON payloads, so a later process can serve queries
// without re-reading the repository.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"locus/internal/logging"
)

// DBFileName is the snapshot database file inside the cache directory.
const DBFileName = "locus.db"

// DB is a handle on one repository's snapshot database.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the snapshot database inside dir, normally the
// per-repository cache directory from paths.CacheDir. A new database gets
// the full schema; an existing one is migrated forward.
func Open(dir string, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas for performance and reliability.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",    // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL",  // Balance between safety and performance
		"PRAGMA foreign_keys=ON",     // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",   // Wait up to 5 seconds on lock
		"PRAGMA cache_size=-64000",   // 64MB cache
		"PRAGMA temp_store=MEMORY",   // Use memory for temp tables
		"PRAGMA mmap_size=268435456", // 256MB mmap
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("creating snapshot database", map[string]interface{}{
			"path": dbPath,
		})
		if err := db.initializeSchema(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else {
		logger.Debug("opened snapshot database", map[string]interface{}{
			"path": dbPath,
		})
		if err := db.runMigrations(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.dbPath
}

// WithTx executes a function within a transaction. If the function returns
// an error the transaction is rolled back, otherwise it is committed.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
