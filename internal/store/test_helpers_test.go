package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// readRecords returns every record of one type in insertion order.
func readRecords(s *Store, recordType string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, type, source, body, invocation, imported_at
		FROM records WHERE type = ? ORDER BY id
	`, recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			importedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Source, &rec.Body, &rec.Invocation, &importedAt); err != nil {
			return nil, err
		}
		rec.ImportedAt = time.UnixMilli(importedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
