package archive

import (
	"archive/zip"
	"fmt"
	"io"
)

// Archive gives random access to named entries by position.
type Archive interface {
	// Len returns the number of entries.
	Len() int
	// Name returns the path of entry i.
	Name(i int) (string, error)
	// Read returns the contents of entry i.
	Read(i int) ([]byte, error)
	Close() error
}

// OpenError reports that the archive container could not be opened.
// It is fatal to the invocation.
type OpenError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("error opening wxz file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Zip is an Archive backed by a zip file on disk.
type Zip struct {
	rc *zip.ReadCloser
}

var _ Archive = (*Zip)(nil)

// Open opens the zip container at path. Returns *OpenError on failure.
func Open(path string) (*Zip, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	return &Zip{rc: rc}, nil
}

// Len returns the number of entries, directories included.
func (z *Zip) Len() int {
	return len(z.rc.File)
}

// Name returns the path of entry i.
func (z *Zip) Name(i int) (string, error) {
	if i < 0 || i >= len(z.rc.File) {
		return "", fmt.Errorf("entry %d out of range [0,%d)", i, len(z.rc.File))
	}
	return z.rc.File[i].Name, nil
}

// Read returns the decompressed contents of entry i.
func (z *Zip) Read(i int) ([]byte, error) {
	if i < 0 || i >= len(z.rc.File) {
		return nil, fmt.Errorf("entry %d out of range [0,%d)", i, len(z.rc.File))
	}
	f := z.rc.File[i]
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	return data, nil
}

// Close closes the underlying file.
func (z *Zip) Close() error {
	return z.rc.Close()
}
