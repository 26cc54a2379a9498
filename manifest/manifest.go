// Package manifest records which dataset cache entries were built, by which
// precompute run, in a SQLite database next to the cache.
package manifest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Entry describes one record's cache entry.
type Entry struct {
	RunID     string
	Key       string
	RecordID  string
	Windows   int
	Positives int
	// Cached is true when the entry was read back instead of recomputed.
	Cached    bool
	Path      string
	CreatedAt time.Time
}

// Store wraps the manifest database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the manifest database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "manifest: mkdir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest: open %s", path)
	}
	// a single connection keeps writers serialized
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			cache_key TEXT NOT NULL,
			record_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			windows INTEGER NOT NULL,
			positives INTEGER NOT NULL,
			cached INTEGER NOT NULL,
			path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (cache_key, record_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "manifest: migrate")
		}
	}
	return nil
}

// RecordEntry inserts e, replacing any earlier entry of the same key and
// record.
func (s *Store) RecordEntry(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (cache_key, record_id, run_id, windows, positives, cached, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.RecordID, e.RunID, e.Windows, e.Positives, flag(e.Cached), e.Path,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrapf(err, "manifest: record %s", e.RecordID)
}

// RecordEntries inserts all entries in one transaction.
func (s *Store) RecordEntries(ctx context.Context, entries []Entry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "manifest: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entries (cache_key, record_id, run_id, windows, positives, cached, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "manifest: prepare")
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err = stmt.ExecContext(ctx, e.Key, e.RecordID, e.RunID, e.Windows, e.Positives, flag(e.Cached), e.Path,
			e.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return errors.Wrapf(err, "manifest: record %s", e.RecordID)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "manifest: commit")
	}
	return nil
}

// Entries lists the entries of a cache key ordered by record id. An empty
// key lists every entry.
func (s *Store) Entries(ctx context.Context, key string) ([]Entry, error) {
	query := `SELECT cache_key, record_id, run_id, windows, positives, cached, path, created_at FROM entries`
	var args []any
	if key != "" {
		query += ` WHERE cache_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY cache_key, record_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "manifest: query")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			cached  int
			created string
		)
		if err := rows.Scan(&e.Key, &e.RecordID, &e.RunID, &e.Windows, &e.Positives, &cached, &e.Path, &created); err != nil {
			return nil, errors.Wrap(err, "manifest: scan")
		}
		e.Cached = cached != 0
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, errors.Wrapf(err, "manifest: created_at of %s", e.RecordID)
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "manifest: rows")
}

// Runs returns the distinct run ids, most recent first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM entries GROUP BY run_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "manifest: query runs")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "manifest: scan run")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "manifest: rows")
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
