// Package history persists navigation redirect chains and answers the
// bridge's redirect queries. Queries run on a worker goroutine, never on
// the session's owning loop; results are posted back before any shared
// state is touched.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrClosed indicates the underlying database connection is unavailable.
var ErrClosed = errors.New("history: closed")

// Store manages the redirect database.
type Store struct {
	db *sql.DB
}

// Open creates the store, initializing the schema. Path ":memory:" opens an
// in-memory database for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create history directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS redirects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_url TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			target_url TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_redirects_source ON redirects(source_url, ordinal);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordChain replaces the redirect chain recorded for source.
func (s *Store) RecordChain(ctx context.Context, source string, targets []string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redirect transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM redirects WHERE source_url = ?`, source); err != nil {
		return fmt.Errorf("clear redirect chain: %w", err)
	}
	for i, target := range targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO redirects (source_url, ordinal, target_url) VALUES (?, ?, ?)`,
			source, i, target,
		); err != nil {
			return fmt.Errorf("insert redirect: %w", err)
		}
	}
	return tx.Commit()
}

// RedirectsFrom returns the redirect chain recorded for source, in order.
// An unknown source returns an empty chain, not an error.
func (s *Store) RedirectsFrom(ctx context.Context, source string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_url FROM redirects WHERE source_url = ? ORDER BY ordinal`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("query redirects: %w", err)
	}
	defer rows.Close()

	var chain []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan redirect: %w", err)
		}
		chain = append(chain, target)
	}
	return chain, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
