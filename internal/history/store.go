package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dlbridge/dlbridge/internal/config"
)

// SQLiteStore persists history entries in an sqlite database keyed by
// canonical URL.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS history (
	canonical_url TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	filename      TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_updated ON history(updated_at DESC);
`

// DefaultStorePath returns the history database location.
func DefaultStorePath() string {
	return filepath.Join(config.GetBridgeDir(), "history.db")
}

// OpenStore opens (creating if needed) the history database at path.
func OpenStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates the entry for its canonical URL.
func (s *SQLiteStore) Upsert(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (canonical_url, url, filename, title, status, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_url) DO UPDATE SET
			url = excluded.url,
			filename = excluded.filename,
			title = excluded.title,
			status = excluded.status,
			kind = excluded.kind,
			updated_at = excluded.updated_at`,
		e.CanonicalURL, e.URL, e.Filename, e.Title, e.Status, e.Kind,
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	return err
}

// Load returns up to limit entries, most recently updated first.
func (s *SQLiteStore) Load(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT canonical_url, url, filename, title, status, kind, created_at, updated_at
		FROM history ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, updated int64
		if err := rows.Scan(&e.CanonicalURL, &e.URL, &e.Filename, &e.Title,
			&e.Status, &e.Kind, &created, &updated); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created)
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Trim deletes everything beyond the limit most recent entries.
func (s *SQLiteStore) Trim(limit int) error {
	_, err := s.db.Exec(`
		DELETE FROM history WHERE canonical_url NOT IN (
			SELECT canonical_url FROM history ORDER BY updated_at DESC LIMIT ?
		)`, limit)
	return err
}

// Clear removes all entries.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM history`)
	return err
}
