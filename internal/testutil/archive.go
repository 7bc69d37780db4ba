package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Entry is one file to place in a test archive.
type Entry struct {
	Name string `yaml:"name"`
	Body string `yaml:"body"`
}

// WriteArchive writes entries, in order, to a new zip file under t.TempDir()
// and returns its path.
func WriteArchive(t *testing.T, entries []Entry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "export.wxz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create entry %q: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("write entry %q: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

// MemArchive is an in-memory archive for tests that do not need a zip file.
// It satisfies archive.Archive.
type MemArchive struct {
	Entries []Entry
}

// Len returns the entry count.
func (m *MemArchive) Len() int {
	return len(m.Entries)
}

// Name returns the name of entry i.
func (m *MemArchive) Name(i int) (string, error) {
	if i < 0 || i >= len(m.Entries) {
		return "", fmt.Errorf("entry %d out of range", i)
	}
	return m.Entries[i].Name, nil
}

// Read returns the body of entry i.
func (m *MemArchive) Read(i int) ([]byte, error) {
	if i < 0 || i >= len(m.Entries) {
		return nil, fmt.Errorf("entry %d out of range", i)
	}
	return []byte(m.Entries[i].Body), nil
}

// Close is a no-op.
func (m *MemArchive) Close() error {
	return nil
}
