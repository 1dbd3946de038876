// Package store caches per-project results in a local SQLite database so a
// batch run can skip projects whose repository head and configuration are
// unchanged since the previous run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/clokep/homeserver-spec-versions/internal/report"
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS project_runs (
    name        TEXT PRIMARY KEY,
    head        TEXT NOT NULL,
    config_hash TEXT NOT NULL,
    data        TEXT NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists evaluated project data between runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath, enables WAL mode and a
// busy timeout, and creates the schema if needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite supports a single writer; one connection avoids SQLITE_BUSY
	// contention between pooled connections that each need PRAGMA setup.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Cached returns the stored data for name when it was produced from the
// same branch head and configuration; ok is false otherwise.
func (s *Store) Cached(ctx context.Context, name, head, configHash string) (*report.ProjectData, bool, error) {
	var storedHead, storedHash, payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT head, config_hash, data FROM project_runs WHERE name = ?", name).
		Scan(&storedHead, &storedHash, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load %s: %w", name, err)
	}
	if storedHead != head || storedHash != configHash {
		return nil, false, nil
	}
	var data report.ProjectData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, false, fmt.Errorf("store: decode %s: %w", name, err)
	}
	return &data, true, nil
}

// Latest returns the stored data for name regardless of head or
// configuration, for projects whose updates are not processed.
func (s *Store) Latest(ctx context.Context, name string) (*report.ProjectData, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM project_runs WHERE name = ?", name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load %s: %w", name, err)
	}
	var data report.ProjectData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, false, fmt.Errorf("store: decode %s: %w", name, err)
	}
	return &data, true, nil
}

// Put records the evaluated data for name.
func (s *Store) Put(ctx context.Context, name, head, configHash string, data *report.ProjectData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO project_runs (name, head, config_hash, data, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
    head = excluded.head,
    config_hash = excluded.config_hash,
    data = excluded.data,
    updated_at = CURRENT_TIMESTAMP`,
		name, head, configHash, string(payload))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", name, err)
	}
	return nil
}
