// Package store provides durable SQLite persistence for call records and
// inbound emails. The voice path writes to it best-effort; the email path
// depends on it.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// DB wraps the SQLite handle used by the call and email stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*DB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			call_sid TEXT NOT NULL UNIQUE,
			from_number TEXT NOT NULL,
			to_number TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT 'inbound',
			status TEXT NOT NULL DEFAULT 'initiated',
			duration INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS call_messages (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL REFERENCES calls(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS emails (
			id TEXT PRIMARY KEY,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			cc_address TEXT,
			subject TEXT NOT NULL DEFAULT '',
			text_body TEXT,
			html_body TEXT,
			headers TEXT,
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			email_id TEXT NOT NULL REFERENCES emails(id),
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size INTEGER NOT NULL,
			content BLOB,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_messages_call ON call_messages(call_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_email ON attachments(email_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
