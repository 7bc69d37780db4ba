package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/engine"
)

func TestReset_StartsOver(t *testing.T) {
	w := newWorkspace(t, sampleEntries, "")
	_, _, err := execute(t, "--config", w.config, "run")
	require.NoError(t, err)
	require.Equal(t, engine.StageFinalize, status(t, "--config", w.config).Stage)

	stdout, _, err := execute(t, "--config", w.config, "reset")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run state reset.")

	st := status(t, "--config", w.config)
	assert.Equal(t, engine.StageStart, st.Stage)
	// Imported records survive a reset.
	assert.Equal(t, map[string]int{"users": 1, "terms": 1, "posts": 1}, st.Imported)

	// The next run walks the archive again; re-imports are no-ops.
	_, _, err = execute(t, "--config", w.config, "run")
	require.NoError(t, err)
	st = status(t, "--config", w.config)
	assert.Equal(t, engine.StageFinalize, st.Stage)
	assert.Equal(t, map[string]int{"users": 1, "terms": 1, "posts": 1}, st.Imported)
}

func TestReset_RefusesWhileLocked(t *testing.T) {
	w := newWorkspace(t, sampleEntries, "")
	holdLock(t, w.db)

	_, _, err := execute(t, "--config", w.config, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "pass --force")
	assert.NotNil(t, status(t, "--config", w.config).LockedSince)

	_, _, err = execute(t, "--config", w.config, "reset", "--force")
	require.NoError(t, err)
	assert.Nil(t, status(t, "--config", w.config).LockedSince)
}

func TestReset_IgnoresArchive(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "import.toml")
	body := fmt.Sprintf("archive = %q\n[store]\ndsn = %q\ntarget = %q\n",
		filepath.Join(dir, "gone.wxz"), filepath.Join(dir, "import.db"), filepath.Join(dir, "import.db"))
	require.NoError(t, os.WriteFile(config, []byte(body), 0o600))

	_, _, err := execute(t, "--config", config, "reset")
	require.NoError(t, err)
}
