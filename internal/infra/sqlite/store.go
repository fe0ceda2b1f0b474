// Package sqlite provides the durable key-value namespace backing the
// back office. One table holds every record as a JSON value under a flat,
// namespace-prefixed key ("bon:", "user:", "reset:"), with an integer
// version per key for optimistic concurrency.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/axstore/axstore/internal/domain"
)

// Store is a SQLite-backed implementation of domain.KVStore.
type Store struct {
	db *sql.DB
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent request handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ─── KV Operations ──────────────────────────────────────────────────────────

// Get returns the value and version stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var value string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT value, version FROM kv_entries WHERE key = ?
	`, key).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return nil, 0, domain.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("kv get %q: %w", key, err)
	}
	return []byte(value), version, nil
}

// Put writes key unconditionally, bumping the version.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, version, updated_at)
		VALUES (?, ?, 1, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			version    = version + 1,
			updated_at = datetime('now')
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// PutVersion writes key only if the stored version equals expect.
// expect == 0 means the key must not exist yet.
func (s *Store) PutVersion(ctx context.Context, key string, value []byte, expect int64) error {
	if expect == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv_entries (key, value) VALUES (?, ?)
		`, key, string(value))
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("kv insert %q: %w", key, err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE kv_entries
		SET value = ?, version = version + 1, updated_at = datetime('now')
		WHERE key = ? AND version = ?
	`, string(value), key, expect)
	if err != nil {
		return fmt.Errorf("kv update %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kv update %q: %w", key, err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// List returns all entries whose key starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.KVEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, version FROM kv_entries
		WHERE key >= ? AND key < ?
	`, prefix, prefix+"￿")
	if err != nil {
		return nil, fmt.Errorf("kv list %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []domain.KVEntry
	for rows.Next() {
		var e domain.KVEntry
		var value string
		if err := rows.Scan(&e.Key, &value, &e.Version); err != nil {
			return nil, fmt.Errorf("kv list %q: %w", prefix, err)
		}
		e.Value = []byte(value)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// isUniqueViolation reports whether err is a primary-key conflict.
// modernc's driver has no typed error for this, so match the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
