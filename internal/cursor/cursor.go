package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/wxzimport/internal/clock"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/store"
)

const (
	// DefaultKey is the option key holding the persisted cursor.
	DefaultKey = "cursor"

	// DefaultStaleAfter is the age past which an in-flight claim is reclaimed.
	DefaultStaleAfter = 30 * time.Second

	// DefaultDrainInterval is the pause between checks while waiting for a
	// type's in-flight claims to drain.
	DefaultDrainInterval = 2 * time.Second
)

// ErrExhausted signals that no records remain in this run.
var ErrExhausted = errors.New("cursor: no more records")

// Locker is the mutual-exclusion lock guarding the cursor.
// Implemented by lock.Mutex.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Sizer reports how many records each type has.
// Implemented by archive.Index.
type Sizer interface {
	Len(t record.Type) int
}

// Claim identifies a record handed to an invocation.
type Claim struct {
	Type  record.Type
	Index int
	Owner string
	// Retry is set when the record was claimed before and timed out.
	Retry bool
}

// InFlight is a claim not yet confirmed complete.
type InFlight struct {
	Index     int    `json:"index"`
	ClaimedAt int64  `json:"claimed_at"` // Unix milliseconds
	Owner     string `json:"owner"`
}

// State is the persisted cursor.
type State struct {
	Type     record.Type `json:"type"`
	Index    int         `json:"index"`
	InFlight []InFlight  `json:"in_flight"`
	Retry    []int       `json:"retry,omitempty"`
}

// Cursor hands out claims and confirms completions against shared state.
type Cursor struct {
	kv     store.KV
	lock   Locker
	clock  clock.Clock
	sizes  Sizer
	order  []record.Type
	owner  string
	events *events.Logger
	logger *slog.Logger

	key           string
	staleAfter    time.Duration
	drainInterval time.Duration
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithKey overrides the option key.
func WithKey(key string) Option {
	return func(c *Cursor) { c.key = key }
}

// WithStaleAfter sets the in-flight staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cursor) { c.staleAfter = d }
}

// WithDrainInterval sets the pause between drain checks.
func WithDrainInterval(d time.Duration) Option {
	return func(c *Cursor) { c.drainInterval = d }
}

// WithEvents sets the event log receiving claim timeouts.
func WithEvents(l *events.Logger) Option {
	return func(c *Cursor) { c.events = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cursor) { c.logger = l }
}

// New creates a cursor for one invocation. owner identifies the invocation
// in its claims; order is the processing order of record types.
func New(kv store.KV, lock Locker, c clock.Clock, sizes Sizer, order []record.Type, owner string, opts ...Option) *Cursor {
	cur := &Cursor{
		kv:            kv,
		lock:          lock,
		clock:         c,
		sizes:         sizes,
		order:         slices.Clone(order),
		owner:         owner,
		logger:        slog.Default(),
		key:           DefaultKey,
		staleAfter:    DefaultStaleAfter,
		drainInterval: DefaultDrainInterval,
	}
	for _, opt := range opts {
		opt(cur)
	}
	if cur.events == nil {
		cur.events = events.New(nil, cur.logger)
	}
	return cur
}

// ClaimNext returns the next record to attempt, or ErrExhausted when the run
// has no more records. It acquires and releases the lock itself, so the
// caller does the slow work (validate, import) outside the critical section.
//
// When the current type is exhausted but claims of it are still in flight,
// ClaimNext releases the lock, sleeps and tries again until they drain or
// go stale. Lock exhaustion is returned as-is (lock.NotAcquiredError); the
// cursor is left untouched.
func (c *Cursor) ClaimNext(ctx context.Context) (Claim, error) {
	for {
		if err := c.lock.Acquire(ctx); err != nil {
			return Claim{}, err
		}

		claim, wait, err := c.claimLocked(ctx)
		if relErr := c.lock.Release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = relErr
		}
		if err != nil {
			return Claim{}, err
		}
		if !wait {
			return claim, nil
		}

		c.logger.Debug("waiting for in-flight claims to drain",
			"type", claim.Type,
			"interval", c.drainInterval,
		)
		if err := c.clock.Sleep(ctx, c.drainInterval); err != nil {
			return Claim{}, err
		}
	}
}

// claimLocked performs one read-modify-write. wait is true when the caller
// must sleep and retry; claim.Type then names the type being drained.
func (c *Cursor) claimLocked(ctx context.Context) (Claim, bool, error) {
	st, err := c.load(ctx)
	if err != nil {
		return Claim{}, false, err
	}
	now := c.clock.Now()
	purged := c.purge(&st, now)

	if st.Type == record.None {
		if purged {
			if err := c.save(ctx, st); err != nil {
				return Claim{}, false, err
			}
		}
		return Claim{}, false, ErrExhausted
	}

	pos := record.IndexOf(c.order, st.Type)
	if pos < 0 {
		return Claim{}, false, fmt.Errorf("cursor: type %q is not in the processing order", st.Type)
	}

	if len(st.Retry) > 0 {
		slices.Sort(st.Retry)
		index := st.Retry[0]
		st.Retry = st.Retry[1:]
		claim, err := c.claim(ctx, &st, index, now, true)
		return claim, false, err
	}

	if st.Index+1 < c.sizes.Len(st.Type) {
		st.Index++
		claim, err := c.claim(ctx, &st, st.Index, now, false)
		return claim, false, err
	}

	if len(st.InFlight) > 0 {
		if purged {
			if err := c.save(ctx, st); err != nil {
				return Claim{}, false, err
			}
		}
		return Claim{Type: st.Type}, true, nil
	}

	next := c.nextType(pos)
	if next == record.None {
		st.Type = record.None
		st.Index = -1
		if err := c.save(ctx, st); err != nil {
			return Claim{}, false, err
		}
		return Claim{}, false, ErrExhausted
	}

	c.logger.Debug("advancing to next type", "from", st.Type, "to", next)
	st.Type = next
	st.Index = 0
	claim, err := c.claim(ctx, &st, 0, now, false)
	return claim, false, err
}

// claim records index as in flight for this invocation and persists.
func (c *Cursor) claim(ctx context.Context, st *State, index int, now time.Time, retry bool) (Claim, error) {
	st.InFlight = append(st.InFlight, InFlight{
		Index:     index,
		ClaimedAt: now.UnixMilli(),
		Owner:     c.owner,
	})
	if err := c.save(ctx, *st); err != nil {
		return Claim{}, err
	}
	return Claim{Type: st.Type, Index: index, Owner: c.owner, Retry: retry}, nil
}

// purge drops in-flight claims older than the staleness threshold and
// queues their indices for retry. Reports whether anything changed.
func (c *Cursor) purge(st *State, now time.Time) bool {
	kept := st.InFlight[:0]
	changed := false
	for _, f := range st.InFlight {
		age := now.Sub(time.UnixMilli(f.ClaimedAt))
		if age <= c.staleAfter {
			kept = append(kept, f)
			continue
		}
		changed = true
		if !slices.Contains(st.Retry, f.Index) {
			st.Retry = append(st.Retry, f.Index)
		}
		c.events.Warning(events.CodeClaimTimeout,
			"Record %d of type %s timed out after %s and will be retried.",
			f.Index, st.Type, age.Truncate(time.Second))
		c.logger.Debug("reclaimed stale claim", "type", st.Type, "index", f.Index, "owner", f.Owner)
	}
	st.InFlight = kept
	return changed
}

// nextType scans forward from pos for the next type with entries.
func (c *Cursor) nextType(pos int) record.Type {
	for i := pos + 1; i < len(c.order); i++ {
		if c.sizes.Len(c.order[i]) > 0 {
			return c.order[i]
		}
	}
	return record.None
}

// Complete confirms a claim. The in-flight entry is removed only if it
// still belongs to claim.Owner; if the claim already timed out and is
// waiting for retry, the retry is cancelled since the work is done.
func (c *Cursor) Complete(ctx context.Context, claim Claim) error {
	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	err := c.completeLocked(ctx, claim)
	if relErr := c.lock.Release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

func (c *Cursor) completeLocked(ctx context.Context, claim Claim) error {
	st, err := c.load(ctx)
	if err != nil {
		return err
	}
	if st.Type != claim.Type {
		c.logger.Debug("completion for a type no longer current", "type", claim.Type, "index", claim.Index)
		return nil
	}

	changed := false
	idx := slices.IndexFunc(st.InFlight, func(f InFlight) bool {
		return f.Index == claim.Index && f.Owner == claim.Owner
	})
	if idx >= 0 {
		st.InFlight = slices.Delete(st.InFlight, idx, idx+1)
		changed = true
	} else if r := slices.Index(st.Retry, claim.Index); r >= 0 {
		st.Retry = slices.Delete(st.Retry, r, r+1)
		changed = true
	}

	if !changed {
		c.logger.Debug("completion for a claim held elsewhere", "type", claim.Type, "index", claim.Index)
		return nil
	}
	return c.save(ctx, st)
}

// Load returns the persisted state, or the initial state if none exists.
func (c *Cursor) Load(ctx context.Context) (State, error) {
	return c.load(ctx)
}

// Reset deletes the persisted cursor.
func (c *Cursor) Reset(ctx context.Context) error {
	if err := c.kv.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}

func (c *Cursor) initial() State {
	st := State{Type: record.None, Index: -1, InFlight: []InFlight{}}
	if len(c.order) > 0 {
		st.Type = c.order[0]
	}
	return st
}

func (c *Cursor) load(ctx context.Context) (State, error) {
	raw, err := c.kv.Get(ctx, c.key)
	if store.IsNotFound(err) {
		return c.initial(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load cursor: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("load cursor: decode %q: %w", raw, err)
	}
	if st.InFlight == nil {
		st.InFlight = []InFlight{}
	}
	return st, nil
}

func (c *Cursor) save(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, string(data)); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
