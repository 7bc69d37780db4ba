package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/cursor"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/importer"
	"github.com/roach88/wxzimport/internal/lock"
	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/schema"
	"github.com/roach88/wxzimport/internal/store"
	"github.com/roach88/wxzimport/internal/store/memory"
	"github.com/roach88/wxzimport/internal/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var bundledValidator = sync.OnceValues(schema.NewCUEValidator)

func validator(t *testing.T) schema.Validator {
	t.Helper()
	v, err := bundledValidator()
	require.NoError(t, err)
	return v
}

// recorder is an importer that remembers what it was given.
type recorder struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	// onImport runs for every dispatched document, before it is recorded.
	onImport func(path string)
}

func newRecorder(fail ...string) *recorder {
	r := &recorder{fail: make(map[string]bool)}
	for _, p := range fail {
		r.fail[p] = true
	}
	return r
}

func (r *recorder) Import(_ context.Context, _ *importer.Context, doc schema.Document) error {
	if r.onImport != nil {
		r.onImport(doc.Path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[doc.Path] {
		return fmt.Errorf("importer rejected %s", doc.Path)
	}
	r.paths = append(r.paths, doc.Path)
	return nil
}

func (r *recorder) dispatched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func registryFor(h importer.Handler, types ...record.Type) *importer.Registry {
	reg := importer.NewRegistry()
	for _, t := range types {
		reg.Register(t, h)
	}
	return reg
}

// fixture wires an engine over an in-memory store and archive with a fake
// clock. Several engines built from one fixture act as separate
// invocations of the same import.
type fixture struct {
	kv      store.KV
	archive *testutil.MemArchive
	clock   *testutil.FakeClock
	log     bytes.Buffer
	events  *events.Logger
	rec     *recorder
	types   []record.Type
}

func newFixture(entries []testutil.Entry, types ...record.Type) *fixture {
	f := &fixture{
		kv:      memory.New(),
		archive: &testutil.MemArchive{Entries: entries},
		clock:   testutil.NewFakeClock(epoch),
		rec:     newRecorder(),
		types:   types,
	}
	f.events = events.New(&f.log, nil)
	return f
}

func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(f.clock),
		WithEvents(f.events),
		WithBudget(0),
		WithLockOptions(lock.WithRetryInterval(time.Millisecond), lock.WithAttempts(3)),
	}
	return New(f.kv, f.archive, registryFor(f.rec, f.types...), validator(t), append(base, opts...)...)
}

func (f *fixture) stage(t *testing.T) string {
	t.Helper()
	v, err := f.kv.Get(context.Background(), KeyStage)
	if store.IsNotFound(err) {
		return ""
	}
	require.NoError(t, err)
	return v
}

func (f *fixture) cursorState(t *testing.T) string {
	t.Helper()
	v, err := f.kv.Get(context.Background(), cursor.DefaultKey)
	require.NoError(t, err)
	return v
}

// failingKV fails every read.
type failingKV struct {
	store.KV
}

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("database is locked")
}

func term(id int) string {
	return fmt.Sprintf(`{"id": %d, "taxonomy": "category", "name": "Term %d"}`, id, id)
}

func post(id int) string {
	return fmt.Sprintf(`{"id": %d, "title": "Post %d"}`, id, id)
}
