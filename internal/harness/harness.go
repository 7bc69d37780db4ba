package harness

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/wxzimport/internal/engine"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/importer"
	"github.com/roach88/wxzimport/internal/schema"
	"github.com/roach88/wxzimport/internal/store/memory"
	"github.com/roach88/wxzimport/internal/testutil"
)

// Epoch is the fake clock's start time for every scenario.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var bundled = sync.OnceValues(schema.NewCUEValidator)

// recorder is the importer every scenario type is bound to.
type recorder struct {
	mu     sync.Mutex
	clock  *testutil.FakeClock
	cost   time.Duration
	fail   map[string]bool
	result *Result
}

func (r *recorder) Import(_ context.Context, rc *importer.Context, doc schema.Document) error {
	r.clock.Advance(r.cost)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[doc.Path] {
		return fmt.Errorf("scenario rejects %s", doc.Path)
	}
	r.result.Dispatched = append(r.result.Dispatched, Dispatch{Invocation: rc.Invocation, Path: doc.Path})
	return nil
}

// Run executes a scenario and evaluates its assertions.
//
// Each scenario runs against a fresh in-memory store. Invocations are
// named inv-1, inv-2, ... and repeat until the run finalizes or
// MaxInvocations is reached. A returned error means an invocation halted;
// assertion failures are reported in the Result instead.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	v, err := bundled()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	var log bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ev := events.New(&log, logger)
	clk := testutil.NewFakeClock(Epoch)
	kv := memory.New()
	archive := &testutil.MemArchive{Entries: s.Entries}
	result := NewResult()

	rec := &recorder{clock: clk, cost: s.recordCost, fail: make(map[string]bool), result: result}
	for _, p := range s.FailImport {
		rec.fail[p] = true
	}
	reg := importer.NewRegistry()
	for _, t := range s.order {
		reg.Register(t, rec)
	}

	ids := make([]string, s.MaxInvocations)
	for i := range ids {
		ids[i] = fmt.Sprintf("inv-%d", i+1)
	}
	gen := engine.NewFixedGenerator(ids...)

	for i := 0; i < s.MaxInvocations; i++ {
		eng := engine.New(kv, archive, reg, v,
			engine.WithClock(clk),
			engine.WithIDGenerator(gen),
			engine.WithEvents(ev),
			engine.WithLogger(logger),
			engine.WithOrder(s.order),
			engine.WithBudget(s.budget),
		)
		report, err := eng.Run(ctx)
		result.Reports = append(result.Reports, report)
		result.Stage = report.Stage
		if err != nil {
			return nil, fmt.Errorf("invocation %d: %w", i+1, err)
		}
		if report.Stage == engine.StageFinalize {
			break
		}
	}

	sc := bufio.NewScanner(&log)
	for sc.Scan() {
		result.Events = append(result.Events, sc.Text())
	}

	if result.Stage != engine.StageFinalize {
		result.AddError(fmt.Sprintf("run did not finalize within %d invocations", s.MaxInvocations))
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
