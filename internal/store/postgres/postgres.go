// Package postgres provides a KV option store backed by PostgreSQL.
//
// Insert-if-absent maps onto INSERT ... ON CONFLICT (name) DO NOTHING, which
// PostgreSQL makes atomic across concurrent sessions.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/wxzimport/internal/store"
)

const createTable = `
CREATE TABLE IF NOT EXISTS wxz_options (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements store.KV over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.KV = (*Store)(nil)

// Open connects to dsn and ensures the options table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create options table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the value under key or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM wxz_options WHERE name = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get option %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wxz_options (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("set option %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM wxz_options WHERE name = $1`, key); err != nil {
		return fmt.Errorf("delete option %q: %w", key, err)
	}
	return nil
}

// Add inserts value under key only if absent.
func (s *Store) Add(ctx context.Context, key, value string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO wxz_options (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO NOTHING
	`, key, value)
	if err != nil {
		return false, fmt.Errorf("add option %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}
