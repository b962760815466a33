package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"locus/internal/logging"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, logging.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, DBFileName)); err != nil {
		t.Fatalf("database file was not created: %v", err)
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpenExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, logging.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := first.Exec("INSERT INTO meta (key, value) VALUES ('probe', 'kept')"); err != nil {
		t.Fatalf("insert probe row: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(dir, logging.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	var value string
	if err := second.QueryRow("SELECT value FROM meta WHERE key = 'probe'").Scan(&value); err != nil {
		t.Fatalf("probe row lost across reopen: %v", err)
	}
	if value != "kept" {
		t.Errorf("probe value = %q, want %q", value, "kept")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('doomed', 'x')"); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("WithTx should propagate the callback error")
	}

	var value string
	scanErr := db.QueryRow("SELECT value FROM meta WHERE key = 'doomed'").Scan(&value)
	if scanErr != sql.ErrNoRows {
		t.Errorf("row survived rollback: err = %v, value = %q", scanErr, value)
	}
}

func TestWithTxCommits(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('kept', 'y')")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	var value string
	if err := db.QueryRow("SELECT value FROM meta WHERE key = 'kept'").Scan(&value); err != nil {
		t.Fatalf("committed row missing: %v", err)
	}
	if value != "y" {
		t.Errorf("value = %q, want %q", value, "y")
	}
}
