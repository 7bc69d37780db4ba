package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/roach88/wxzimport/internal/archive"
	"github.com/roach88/wxzimport/internal/clock"
	"github.com/roach88/wxzimport/internal/cursor"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/importer"
	"github.com/roach88/wxzimport/internal/lock"
	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/schema"
	"github.com/roach88/wxzimport/internal/store"
)

// KeyStage is the option key holding the run stage.
const KeyStage = "stage"

// Run stages.
const (
	StageStart    = "start"
	StageObjects  = "objects"
	StageFinalize = "finalize"
)

// Report summarizes one invocation.
type Report struct {
	Invocation string        `json:"invocation"`
	Stage      string        `json:"stage"`
	Processed  int           `json:"processed"`
	Imported   int           `json:"imported"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Warnings   int           `json:"warnings"`
	Errors     int           `json:"errors"`
	Elapsed    time.Duration `json:"elapsed"`
	// PeakMemory is the memory obtained from the OS (runtime.MemStats.Sys).
	PeakMemory uint64 `json:"peak_memory"`
	// Yielded is set when the budget ran out before the run finished.
	Yielded bool `json:"yielded"`
}

// Engine drives invocations of one import.
type Engine struct {
	kv        store.KV
	archive   archive.Archive
	registry  *importer.Registry
	validator schema.Validator

	clock  clock.Clock
	ids    IDGenerator
	events *events.Logger
	logger *slog.Logger

	order      []record.Type
	budget     time.Duration
	lockOpts   []lock.Option
	cursorOpts []cursor.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the invocation ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithEvents sets the event log. Default: events mirrored to slog only.
func WithEvents(l *events.Logger) Option {
	return func(e *Engine) { e.events = l }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOrder sets the type processing order. Types without a registered
// importer are dropped from it. Default: record.DefaultOrder.
func WithOrder(order []record.Type) Option {
	return func(e *Engine) { e.order = slices.Clone(order) }
}

// WithBudget sets the per-invocation time budget; <= 0 means unlimited.
// Default: DefaultBudget.
func WithBudget(d time.Duration) Option {
	return func(e *Engine) { e.budget = d }
}

// WithLockOptions passes options to the lock.
func WithLockOptions(opts ...lock.Option) Option {
	return func(e *Engine) { e.lockOpts = append(e.lockOpts, opts...) }
}

// WithCursorOptions passes options to the progress cursor.
func WithCursorOptions(opts ...cursor.Option) Option {
	return func(e *Engine) { e.cursorOpts = append(e.cursorOpts, opts...) }
}

// New creates an Engine over a shared store and an opened archive.
func New(kv store.KV, a archive.Archive, reg *importer.Registry, v schema.Validator, opts ...Option) *Engine {
	e := &Engine{
		kv:        kv,
		archive:   a,
		registry:  reg,
		validator: v,
		clock:     clock.Real{},
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		order:     slices.Clone(record.DefaultOrder),
		budget:    DefaultBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.events == nil {
		e.events = events.New(nil, e.logger)
	}
	return e
}

// run holds the invocation-local state of one Run call.
type run struct {
	id       string
	logger   *slog.Logger
	index    archive.Index
	mutex    *lock.Mutex
	cursor   *cursor.Cursor
	gate     *schema.Gate
	governor *Governor
	report   *Report
}

// Run executes one invocation: it resumes at the persisted stage and
// processes records until the run finishes or the budget is spent.
//
// The returned Report is filled in even when Run fails.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	id := e.ids.Generate()
	logger := e.logger.With("invocation", id)
	before := e.events.Counts()

	types := e.registry.Types(e.order)
	r := &run{
		id:       id,
		logger:   logger,
		index:    archive.BuildIndex(e.archive, types),
		governor: NewGovernor(e.clock, e.budget),
		report:   &Report{Invocation: id},
	}
	r.mutex = lock.New(e.kv, e.clock, append([]lock.Option{lock.WithLogger(logger)}, e.lockOpts...)...)
	r.cursor = cursor.New(e.kv, r.mutex, e.clock, r.index, types, id,
		append([]cursor.Option{cursor.WithEvents(e.events), cursor.WithLogger(logger)}, e.cursorOpts...)...)
	r.gate = schema.NewGate(e.validator, e.events, logger)

	logger.Info("invocation started", "types", types, "budget", e.budget)
	for _, t := range types {
		logger.Debug("indexed entries", "type", t, "count", r.index.Len(t))
	}

	err := e.loop(ctx, r)

	after := e.events.Counts()
	r.report.Warnings = after[events.Warning] - before[events.Warning]
	r.report.Errors = after[events.Error] - before[events.Error]
	r.report.Elapsed = r.governor.Elapsed()
	e.finish(r)
	return *r.report, err
}

// loop is the stage machine.
func (e *Engine) loop(ctx context.Context, r *run) error {
	for r.governor.CanContinue() {
		stage, err := e.stage(ctx)
		if err != nil {
			return e.halt(r, err)
		}
		r.report.Stage = stage

		switch stage {
		case StageStart:
			if err := e.start(ctx, r); err != nil {
				return e.halt(r, err)
			}
		case StageObjects:
			if err := e.objects(ctx, r); err != nil {
				return e.halt(r, err)
			}
		case StageFinalize:
			return nil
		default:
			return &RunError{
				Code:       ErrCodeUnknownStage,
				Invocation: r.id,
				Stage:      stage,
				Err:        fmt.Errorf("unknown stage %q", stage),
			}
		}
	}
	r.report.Yielded = r.report.Stage != StageFinalize
	return nil
}

// start resets the cursor and moves to objects. It runs under the lock and
// re-checks the stage so that only one of several racing invocations
// performs the reset.
func (e *Engine) start(ctx context.Context, r *run) error {
	if err := r.mutex.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := r.mutex.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("release lock", "error", err)
		}
	}()

	stage, err := e.stage(ctx)
	if err != nil {
		return err
	}
	if stage != StageStart {
		r.logger.Debug("stage advanced by another invocation", "stage", stage)
		return nil
	}

	r.logger.Info("starting the pre-import stage")
	if err := r.cursor.Reset(ctx); err != nil {
		return err
	}
	return e.setStage(ctx, StageObjects)
}

// objects runs the per-record loop until the cursor is exhausted or the
// governor says stop.
func (e *Engine) objects(ctx context.Context, r *run) error {
	for {
		claim, err := r.cursor.ClaimNext(ctx)
		if errors.Is(err, cursor.ErrExhausted) {
			r.logger.Info("all records claimed, finalizing")
			if err := e.setStage(ctx, StageFinalize); err != nil {
				return err
			}
			r.report.Stage = StageFinalize
			return nil
		}
		if err != nil {
			return err
		}

		e.process(ctx, r, claim)

		if err := r.cursor.Complete(ctx, claim); err != nil {
			return err
		}
		r.governor.Done()
		r.report.Processed++

		if !r.governor.CanContinue() {
			r.logger.Info("time budget reached, yielding",
				"completed", r.governor.Completed(),
				"elapsed", r.governor.Elapsed(),
			)
			return nil
		}
	}
}

// process reads, validates and dispatches one claimed record. Every failure
// here is local to the record.
func (e *Engine) process(ctx context.Context, r *run, claim cursor.Claim) {
	logger := r.logger.With("type", claim.Type, "index", claim.Index)

	pos, ok := r.index.Position(claim.Type, claim.Index)
	if !ok {
		e.events.Error(events.CodeReadFailed, "Record %d of type %s is not in the archive.", claim.Index, claim.Type)
		r.report.Skipped++
		return
	}
	name, err := e.archive.Name(pos)
	if err != nil {
		e.events.Error(events.CodeReadFailed, "Could not read entry %d: %v", pos, err)
		r.report.Skipped++
		return
	}
	raw, err := e.archive.Read(pos)
	if err != nil {
		e.events.Error(events.CodeReadFailed, "Could not read %s: %v", name, err)
		r.report.Skipped++
		return
	}

	doc, ok := r.gate.Check(raw, claim.Type, name)
	if !ok {
		r.report.Skipped++
		return
	}

	rc := &importer.Context{
		Invocation: r.id,
		Type:       claim.Type,
		Path:       name,
		Events:     e.events,
		Logger:     logger.With("path", name),
	}
	if err := e.registry.Dispatch(ctx, rc, doc); err != nil {
		e.events.Error(events.CodeImportFailed, "Importing %s failed: %v", name, err)
		r.report.Failed++
		return
	}
	if claim.Retry {
		logger.Debug("re-imported timed out record", "path", name)
	}
	r.report.Imported++
}

// finish logs the end-of-invocation report.
func (e *Engine) finish(r *run) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.report.PeakMemory = ms.Sys

	r.logger.Info("invocation finished",
		"stage", r.report.Stage,
		"processed", r.report.Processed,
		"imported", r.report.Imported,
		"skipped", r.report.Skipped,
		"failed", r.report.Failed,
		"elapsed", r.report.Elapsed,
		"yielded", r.report.Yielded,
	)
	r.logger.Info("PEAK USAGE", "bytes", r.report.PeakMemory)
}

// halt wraps an error that ends the invocation.
func (e *Engine) halt(r *run, err error) error {
	code := ErrCodeStore
	switch {
	case lock.IsNotAcquired(err):
		code = ErrCodeLockNotAcquired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeCancelled
	}
	r.logger.Error("invocation halted", "code", code, "error", err)
	return &RunError{Code: code, Invocation: r.id, Stage: r.report.Stage, Err: err}
}

// stage reads the persisted stage, defaulting to start.
func (e *Engine) stage(ctx context.Context) (string, error) {
	v, err := e.kv.Get(ctx, KeyStage)
	if store.IsNotFound(err) {
		return StageStart, nil
	}
	if err != nil {
		return "", fmt.Errorf("read stage: %w", err)
	}
	return v, nil
}

func (e *Engine) setStage(ctx context.Context, stage string) error {
	if err := e.kv.Set(ctx, KeyStage, stage); err != nil {
		return fmt.Errorf("write stage %s: %w", stage, err)
	}
	return nil
}

// Status is a read-only view of a run's shared state.
type Status struct {
	Stage  string         `json:"stage"`
	Cursor cursor.State   `json:"cursor"`
	Counts map[string]int `json:"counts"`
	// LockedSince is set while some invocation holds the lock.
	LockedSince *time.Time `json:"locked_since,omitempty"`
}

// Status reads the stage, cursor and lock without taking the lock. The
// entry counts are empty when the engine has no archive.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	types := e.registry.Types(e.order)
	var index archive.Index
	if e.archive != nil {
		index = archive.BuildIndex(e.archive, types)
	}
	mutex := lock.New(e.kv, e.clock, e.lockOpts...)
	cur := cursor.New(e.kv, mutex, e.clock, index, types, "", e.cursorOpts...)

	stage, err := e.stage(ctx)
	if err != nil {
		return Status{}, err
	}
	st, err := cur.Load(ctx)
	if err != nil {
		return Status{}, err
	}

	counts := make(map[string]int, len(types))
	for t, n := range index.Counts() {
		counts[string(t)] = n
	}

	status := Status{Stage: stage, Cursor: st, Counts: counts}
	at, held, err := mutex.HeldSince(ctx)
	if err != nil {
		return Status{}, err
	}
	if held {
		status.LockedSince = &at
	}
	return status, nil
}

// Reset deletes the run's shared state so the next invocation starts over.
// It does not touch imported records and needs no archive.
func (e *Engine) Reset(ctx context.Context) error {
	mutex := lock.New(e.kv, e.clock, e.lockOpts...)
	cur := cursor.New(e.kv, mutex, e.clock, archive.Index{}, nil, "", e.cursorOpts...)

	if err := e.kv.Delete(ctx, KeyStage); err != nil {
		return fmt.Errorf("reset stage: %w", err)
	}
	if err := cur.Reset(ctx); err != nil {
		return err
	}
	if err := mutex.Release(ctx); err != nil {
		return fmt.Errorf("reset lock: %w", err)
	}
	return nil
}
