// Package store persists books and tasks to a local SQLite database. It is
// the sole component in kobold that touches SQL; everything above it (the
// queue and pipeline stages) works in terms of pkg/model types.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is recorded via PRAGMA user_version after migration,
// so that reopening an up-to-date database is a no-op.
const currentSchemaVersion = 1

// Store wraps a SQLite connection shared by the book and task repositories.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and brings
// its schema up to currentSchemaVersion.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// modernc.org/sqlite has no separate locking layer of its own; restrict
	// the pool to a single connection so writers never race each other
	// inside the driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to enable foreign keys: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateSchema applies schema changes up to currentSchemaVersion, tracked
// via SQLite's built-in user_version pragma.
func migrateSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("unable to read schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil
	}

	if version < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return fmt.Errorf("unable to apply schema v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, currentSchemaVersion)); err != nil {
		return fmt.Errorf("unable to record schema version: %w", err)
	}

	return nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS books (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	author           TEXT,
	series           TEXT,
	series_index     INTEGER,
	language         TEXT,
	genre            TEXT,
	publication_date TEXT,
	isbn             TEXT,
	file_path        TEXT NOT NULL,
	file_hash        TEXT NOT NULL,
	file_size        INTEGER NOT NULL,
	file_format      TEXT NOT NULL,
	kepub_path       TEXT,
	is_deleted       INTEGER NOT NULL DEFAULT 0,
	deleted_at       TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_books_hash_size ON books(file_hash, file_size);
CREATE INDEX IF NOT EXISTS idx_books_file_path ON books(file_path);

CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	payload        TEXT NOT NULL,
	status         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL,
	error_message  TEXT,
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT,
	next_retry_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(status, next_retry_at, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`
