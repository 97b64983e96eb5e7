package repository

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DatabaseOptions tunes the SQLite connection pool
type DatabaseOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	filename TEXT NOT NULL,
	total_size INTEGER NOT NULL,
	chunk_size INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	temp_path TEXT NOT NULL,
	disk_path TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_status_updated ON upload_sessions(status, updated_at);

CREATE TABLE IF NOT EXISTS upload_chunks (
	upload_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	size INTEGER NOT NULL,
	received_at INTEGER NOT NULL,
	PRIMARY KEY (upload_id, chunk_index),
	FOREIGN KEY (upload_id) REFERENCES upload_sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS stored_files (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	upload_id TEXT NOT NULL UNIQUE,
	original_filename TEXT NOT NULL,
	stored_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	disk_path TEXT NOT NULL,
	size INTEGER NOT NULL,
	mime_type TEXT,
	created_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_stored_files_owner ON stored_files(owner, deleted_at);
`

// OpenDatabase opens the SQLite database at path and applies the schema
func OpenDatabase(path string, opts DatabaseOptions) (*sql.DB, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, busy.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
