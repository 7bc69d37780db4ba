package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/testutil"
)

// sampleEntries is a small export: one record of each type plus a post
// that fails validation.
var sampleEntries = []testutil.Entry{
	{Name: "users/1.json", Body: `{"id": 1, "username": "admin"}`},
	{Name: "terms/1.json", Body: `{"id": 1, "taxonomy": "category", "name": "News"}`},
	{Name: "posts/1.json", Body: `{"id": 1, "title": "Hello", "status": "publish"}`},
	{Name: "posts/2.json", Body: `{"id": 2, "status": "publish"}`},
}

// workspace is a config file over a SQLite database in a temp dir.
type workspace struct {
	dir     string
	db      string
	config  string
	archive string
}

// newWorkspace writes an archive of entries and a config pointing at it.
// extra is inserted after the archive key, so it may set top-level keys
// or open tables of its own.
func newWorkspace(t *testing.T, entries []testutil.Entry, extra string) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:     dir,
		db:      filepath.Join(dir, "import.db"),
		config:  filepath.Join(dir, "import.toml"),
		archive: testutil.WriteArchive(t, entries),
	}
	body := fmt.Sprintf(`archive = %q
%s
[store]
driver = "sqlite"
dsn = %q
target = %q
`, w.archive, extra, w.db, w.db)
	require.NoError(t, os.WriteFile(w.config, []byte(body), 0o600))
	return w
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
