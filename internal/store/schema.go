package store

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database.
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createMetaTable(tx); err != nil {
			return err
		}
		if err := createGraphTables(tx); err != nil {
			return err
		}
		if err := createIndexTables(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Debug("snapshot schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations brings an existing database up to the current schema.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	db.logger.Info("migrating snapshot schema", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migrations run sequentially as the schema evolves. A version 0
	// database predates the schema_version table and is rebuilt from
	// scratch: snapshots are derived state, so dropping them only costs
	// one re-index.
	if version == 0 {
		return db.initializeSchema()
	}

	return nil
}

// getSchemaVersion returns the stored schema version, or 0 for a database
// created before version tracking.
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createMetaTable creates the key/value table holding build provenance and
// the scalar index parameters.
func createMetaTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}
	return nil
}

// createGraphTables creates the entities and relationships tables. Entity
// rows carry a compressed JSON payload as the source of truth; the plain
// columns exist for inspection and stats queries without decompression.
func createGraphTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			payload BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			confidence REAL NOT NULL,
			metadata TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create relationships table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind)",
		"CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path)",
		"CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id)",
		"CREATE INDEX IF NOT EXISTS idx_relationships_kind ON relationships(kind)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createIndexTables creates the bm25_docs and bm25_terms tables. Document
// text is compressed; term statistics are small and stay plain.
func createIndexTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS bm25_docs (
			entity_id TEXT PRIMARY KEY,
			length INTEGER NOT NULL,
			text BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bm25_docs table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS bm25_terms (
			term TEXT PRIMARY KEY,
			doc_frequency INTEGER NOT NULL,
			idf REAL NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bm25_terms table: %w", err)
	}

	return nil
}
