package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the option stored under key.
// Returns ErrNotFound if the option does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get option %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the option stored under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("set option %q: %w", key, err)
	}
	return nil
}

// Delete removes the option stored under key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, key); err != nil {
		return fmt.Errorf("delete option %q: %w", key, err)
	}
	return nil
}

// Add inserts the option only if key is absent.
// Uses ON CONFLICT(name) DO NOTHING; the row count tells whether this call
// created the key. Concurrent processes serialize on the SQLite write lock.
func (s *Store) Add(ctx context.Context, key, value string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO options (name, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(name) DO NOTHING
	`, key, value)
	if err != nil {
		return false, fmt.Errorf("add option %q: %w", key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add option %q: rows affected: %w", key, err)
	}
	return rowsAffected > 0, nil
}
