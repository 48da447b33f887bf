package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SearchEntry is one recorded search
type SearchEntry struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
	UseCount    int    `json:"use_count"`
	LastUsed    int64  `json:"last_used"`
}

// SearchHistoryStore records executed searches for one account
type SearchHistoryStore struct {
	db      *sql.DB
	account string
	now     func() time.Time
}

// NewSearchHistoryStore creates a history store scoped to account
func NewSearchHistoryStore(store *Store, account string) *SearchHistoryStore {
	if strings.TrimSpace(account) == "" {
		account = "default"
	}
	return &SearchHistoryStore{
		db:      store.DB(),
		account: account,
		now:     time.Now,
	}
}

// Record stores a search, bumping its use count when it was run before
func (s *SearchHistoryStore) Record(ctx context.Context, query string, resultCount int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (account, query, result_count, use_count, last_used)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(account, query) DO UPDATE SET
			result_count = excluded.result_count,
			use_count = use_count + 1,
			last_used = excluded.last_used`,
		s.account, query, resultCount, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// Recent returns up to limit distinct queries, most recent first
func (s *SearchHistoryStore) Recent(ctx context.Context, limit int) ([]string, error) {
	entries, err := s.Entries(ctx, limit)
	if err != nil {
		return nil, err
	}
	queries := make([]string, 0, len(entries))
	for _, e := range entries {
		queries = append(queries, e.Query)
	}
	return queries, nil
}

// Entries returns up to limit history rows, most recent first
func (s *SearchHistoryStore) Entries(ctx context.Context, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query, result_count, use_count, last_used
		FROM search_history
		WHERE account = ?
		ORDER BY last_used DESC, query ASC
		LIMIT ?`,
		s.account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []SearchEntry
	for rows.Next() {
		var e SearchEntry
		if err := rows.Scan(&e.Query, &e.ResultCount, &e.UseCount, &e.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Delete removes one query from the history
func (s *SearchHistoryStore) Delete(ctx context.Context, query string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE account = ? AND query = ?`,
		s.account, strings.TrimSpace(query))
	if err != nil {
		return fmt.Errorf("failed to delete search: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("search not found")
	}
	return nil
}

// Clear removes the account's whole history
func (s *SearchHistoryStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_history WHERE account = ?`, s.account); err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}
