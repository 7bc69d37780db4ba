package store

import (
	"context"
	"fmt"
	"time"
)

// Record is one imported document in the target store.
type Record struct {
	ID         int64
	Type       string
	Source     string // archive entry path, e.g. "posts/12.json"
	Body       string // raw JSON document
	Invocation string // invocation that imported it first
	ImportedAt time.Time
}

// WriteRecord inserts an imported document.
// Uses ON CONFLICT(type, source) DO NOTHING for idempotency: a record that
// is imported twice (claim reclaimed while its importer was still running)
// keeps its first copy. Returns whether a new row was inserted.
func (s *Store) WriteRecord(ctx context.Context, rec Record) (bool, error) {
	importedAt := rec.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO records (type, source, body, invocation, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, source) DO NOTHING
	`,
		rec.Type,
		rec.Source,
		rec.Body,
		rec.Invocation,
		importedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("write record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write record: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CountRecords returns the number of imported records per type.
func (s *Store) CountRecords(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM records GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan record count: %w", err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record counts: %w", err)
	}
	return counts, nil
}
