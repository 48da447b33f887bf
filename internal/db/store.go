package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database used for local data storage
type Store struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the database at the given path
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create database file: %w", err)
		}
		f.Close()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// pragmas below are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrations are applied in order; user_version records how many ran
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS search_history (
  account      TEXT NOT NULL,
  query        TEXT NOT NULL,
  result_count INTEGER NOT NULL DEFAULT 0,
  use_count    INTEGER NOT NULL DEFAULT 1,
  last_used    INTEGER NOT NULL,
  PRIMARY KEY (account, query)
);
CREATE INDEX IF NOT EXISTS idx_search_history_recent ON search_history (account, last_used DESC);
`,
}

func (s *Store) migrate(ctx context.Context) error {
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)

	for ver < len(migrations) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, migrations[ver])
		if err == nil {
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", ver+1))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", ver+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver++
	}
	return nil
}

// Version returns the applied schema version
func (s *Store) Version(ctx context.Context) (int, error) {
	var ver int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver); err != nil {
		return 0, err
	}
	return ver, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for use by domain stores
func (s *Store) DB() *sql.DB {
	return s.db
}
