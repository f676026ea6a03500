package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps guard documents in a single SQLite table, one row per
// project+name. It satisfies the same Store contract as FileStore so
// guards never notice which backend is configured.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	project    TEXT NOT NULL,
	name       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (project, name)
);`

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// Document writes are whole-row replacements; one writer is plenty.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load decodes the stored document into v. Missing rows map to
// ErrNotFound, undecodable payloads to ErrCorrupt.
func (s *SQLiteStore) Load(ctx context.Context, project, name string, v any) error {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE project = ? AND name = ?`,
		project, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, project, name)
	}
	if err != nil {
		return fmt.Errorf("query %s/%s: %w", project, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, project, name, err)
	}
	return nil
}

// Save encodes v and upserts the document row.
func (s *SQLiteStore) Save(ctx context.Context, project, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", project, name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (project, name, data, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (project, name)
		 DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		project, name, data,
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", project, name, err)
	}
	return nil
}
