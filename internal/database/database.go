// Package database opens the service's embedded SQLite database.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Memory is the path that opens a private in-memory database.
const Memory = ":memory:"

// Open opens a SQLite database with the service's connection settings and
// reports whether it lives in memory. Parent directories are created.
func Open(dbPath string) (*sql.DB, bool, error) {
	var connStr string
	isMemory := dbPath == Memory

	if isMemory {
		connStr = "file::memory:?_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, false, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, false, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, isMemory, nil
}

// Checkpoint truncates the WAL of a file database before it is closed.
func Checkpoint(db *sql.DB) error {
	_, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
