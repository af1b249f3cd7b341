// Package sendlog records per-recipient delivery outcomes in SQLite.
package sendlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the send log database at path and runs
// migrations.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(migrationSendLog); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

const migrationSendLog = `
CREATE TABLE IF NOT EXISTS send_log (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    sender_id TEXT,
    sender_email TEXT,
    recipient_email TEXT NOT NULL,
    recipient_name TEXT,
    subject TEXT,
    status TEXT NOT NULL,
    error_kind TEXT,
    error_message TEXT,
    sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_send_log_batch ON send_log(batch_id);
CREATE INDEX IF NOT EXISTS idx_send_log_status ON send_log(status);
CREATE INDEX IF NOT EXISTS idx_send_log_sent_at ON send_log(sent_at);
`
