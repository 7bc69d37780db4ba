package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/record"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "basic.yaml", `
name: basic
order: [terms, posts]
budget: 5s
record_cost: 250ms
entries:
  - name: terms/1.json
    body: '{"id": 1}'
assertions:
  - type: final_stage
    stage: finalize
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, []record.Type{record.Terms, record.Posts}, s.order)
	assert.Equal(t, 5*time.Second, s.budget)
	assert.Equal(t, 250*time.Millisecond, s.recordCost)
	assert.Equal(t, DefaultMaxInvocations, s.MaxInvocations)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, `{"id": 1}`, s.Entries[0].Body)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, "finalize", s.Assertions[0].Stage)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\norder: [terms]\nbogus: 1\n", "bogus"},
		{"missing name", "order: [terms]\n", "name is required"},
		{"missing order", "name: x\n", "order is required"},
		{"unknown type", "name: x\norder: [comments]\n", "comments"},
		{"duplicate type", "name: x\norder: [terms, terms]\n", "duplicate"},
		{"bad budget", "name: x\norder: [terms]\nbudget: soon\n", "budget"},
		{"negative cost", "name: x\norder: [terms]\nrecord_cost: -1s\n", "record_cost"},
		{"unknown assertion", "name: x\norder: [terms]\nassertions:\n  - type: vibes\n", "vibes"},
		{"count without path", "name: x\norder: [terms]\nassertions:\n  - type: dispatch_count\n    count: 1\n", "requires path"},
		{"bad level", "name: x\norder: [terms]\nassertions:\n  - type: events\n    level: info\n", "warning or error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), "test.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarios_SortedByFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "name: second\norder: [posts]\n")
	writeFile(t, dir, "a.yaml", "name: first\norder: [terms]\n")
	writeFile(t, dir, "notes.txt", "ignored")

	got, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "second", got[1].Name)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read scenario")
}
