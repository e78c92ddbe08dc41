package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clausebit/companion/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	key        TEXT PRIMARY KEY,
	origin     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	version    INTEGER NOT NULL
)`

// SQLiteStore persists summaries in a local SQLite file so they survive
// restarts, the way extension-local storage does.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure cache database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, origin string) (*model.CachedSummary, error) {
	var (
		payload   string
		fetchedAt string
		entry     model.CachedSummary
	)
	row := s.db.QueryRowContext(ctx,
		"SELECT origin, payload, fetched_at, version FROM summaries WHERE key = ?", Key(origin))
	if err := row.Scan(&entry.Origin, &payload, &fetchedAt, &entry.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &entry.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode cached summary: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
		entry.FetchedAt = t
	}
	return &entry, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry *model.CachedSummary) error {
	payload, err := json.Marshal(entry.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO summaries (key, origin, payload, fetched_at, version)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	origin = excluded.origin,
	payload = excluded.payload,
	fetched_at = excluded.fetched_at,
	version = excluded.version`,
		Key(entry.Origin), entry.Origin, string(payload),
		entry.FetchedAt.UTC().Format(time.RFC3339Nano), entry.Version)
	if err != nil {
		return fmt.Errorf("failed to write cached summary: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
