// Package database opens the relay's SQLite file and keeps its schema current
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DBPath returns the default path of the shared database
func DBPath() string {
	return filepath.Join("data", "dive-relay.db")
}

// Open opens (creating if needed) the database at dbPath and ensures the schema.
// The connection runs in WAL mode with a busy timeout so the workers and the HTTP API can share it.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// modernc serializes writes per connection; a single writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema ensures the relay tables exist without touching existing rows
func EnsureSchema(dbPath string) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	return db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cooldowns (
			kind TEXT PRIMARY KEY,
			region TEXT NOT NULL,
			item TEXT NOT NULL,
			sent_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS heart_rate_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			bpm INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_heart_rate_recorded ON heart_rate_readings(recorded_at);
		CREATE INDEX IF NOT EXISTS idx_heart_rate_node ON heart_rate_readings(node_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("creating relay tables: %w", err)
	}
	return nil
}
