// Package lock implements a best-effort distributed mutex over a KV store.
//
// The lock is a single key whose value is the holder's acquisition time in
// Unix milliseconds. Acquisition uses the store's atomic insert-if-absent
// primitive. A lock older than the staleness threshold is presumed
// abandoned and taken over by overwriting it.
//
// There is no fencing token: after a takeover two invocations can briefly
// both believe they hold the lock, and Release deletes the key regardless
// of who wrote it. The guarded section (a progress cursor read-modify-write)
// is short and its effects are monotonic, which is what makes this
// acceptable.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roach88/wxzimport/internal/clock"
	"github.com/roach88/wxzimport/internal/store"
)

const (
	// DefaultKey is the option key holding the lock timestamp.
	DefaultKey = "lock"

	// DefaultAttempts is how many insert-if-absent attempts Acquire makes.
	DefaultAttempts = 10

	// DefaultRetryInterval is the pause between attempts.
	DefaultRetryInterval = 500 * time.Millisecond

	// DefaultStaleAfter is the age past which a held lock is taken over.
	DefaultStaleAfter = 5 * time.Second
)

// NotAcquiredError is returned when every attempt found the lock held and
// fresh. The caller must not touch state the lock guards.
type NotAcquiredError struct {
	Key      string
	Attempts int
	HeldAt   time.Time
}

// Error implements the error interface.
func (e *NotAcquiredError) Error() string {
	return fmt.Sprintf("lock %q not acquired after %d attempts (held since %s)",
		e.Key, e.Attempts, e.HeldAt.Format(time.RFC3339Nano))
}

// IsNotAcquired reports whether err is a NotAcquiredError.
// Uses errors.As to handle wrapped errors.
func IsNotAcquired(err error) bool {
	var na *NotAcquiredError
	return errors.As(err, &na)
}

// Mutex is the lock handle. It holds no ownership state; the store is the
// only source of truth.
type Mutex struct {
	kv            store.KV
	clock         clock.Clock
	logger        *slog.Logger
	key           string
	attempts      int
	retryInterval time.Duration
	staleAfter    time.Duration
}

// Option configures a Mutex.
type Option func(*Mutex)

// WithKey overrides the lock key.
func WithKey(key string) Option {
	return func(m *Mutex) { m.key = key }
}

// WithAttempts sets how many insert attempts Acquire makes (minimum 1).
func WithAttempts(n int) Option {
	return func(m *Mutex) {
		if n < 1 {
			n = 1
		}
		m.attempts = n
	}
}

// WithRetryInterval sets the pause between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Mutex) { m.retryInterval = d }
}

// WithStaleAfter sets the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Mutex) { m.staleAfter = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mutex) { m.logger = l }
}

// New creates a Mutex over kv.
func New(kv store.KV, c clock.Clock, opts ...Option) *Mutex {
	m := &Mutex{
		kv:            kv,
		clock:         c,
		logger:        slog.Default(),
		key:           DefaultKey,
		attempts:      DefaultAttempts,
		retryInterval: DefaultRetryInterval,
		staleAfter:    DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// errHeld signals a fresh lock to the retry loop.
var errHeld = errors.New("lock held")

// Acquire takes the lock, retrying with a constant pause up to the
// configured number of attempts. Returns *NotAcquiredError when exhausted,
// the store error if the store itself fails, or ctx's error if ctx ends
// while waiting between attempts.
func (m *Mutex) Acquire(ctx context.Context) error {
	var (
		heldAt   time.Time
		storeErr error
		attempts int
	)

	op := func() error {
		attempts++
		if err := ctx.Err(); err != nil {
			storeErr = err
			return nil
		}
		acquired, at, err := m.try(ctx)
		if err != nil {
			storeErr = err
			return nil
		}
		if acquired {
			return nil
		}
		heldAt = at
		return errHeld
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retryInterval), uint64(m.attempts-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	if storeErr != nil {
		return fmt.Errorf("acquire lock %q: %w", m.key, storeErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("acquire lock %q: %w", m.key, ctxErr)
	}
	if err != nil {
		return &NotAcquiredError{Key: m.key, Attempts: attempts, HeldAt: heldAt}
	}
	return nil
}

// try makes one acquisition attempt. Returns the current holder's timestamp
// when the lock is held and fresh.
func (m *Mutex) try(ctx context.Context) (bool, time.Time, error) {
	now := m.clock.Now()
	value := strconv.FormatInt(now.UnixMilli(), 10)

	ok, err := m.kv.Add(ctx, m.key, value)
	if err != nil {
		return false, time.Time{}, err
	}
	if ok {
		return true, time.Time{}, nil
	}

	raw, err := m.kv.Get(ctx, m.key)
	if store.IsNotFound(err) {
		// Released between our Add and Get; the next attempt may win it.
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}

	heldAt, parseErr := parseTimestamp(raw)
	if parseErr == nil && now.Sub(heldAt) <= m.staleAfter {
		return false, heldAt, nil
	}

	// Stale or unreadable: take it over.
	if err := m.kv.Set(ctx, m.key, value); err != nil {
		return false, time.Time{}, err
	}
	m.logger.Warn("took over stale lock",
		"key", m.key,
		"held_at", raw,
		"stale_after", m.staleAfter,
	)
	return true, time.Time{}, nil
}

// Release deletes the lock key unconditionally.
func (m *Mutex) Release(ctx context.Context) error {
	if err := m.kv.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("release lock %q: %w", m.key, err)
	}
	return nil
}

// HeldSince returns the timestamp of the current holder, if any.
func (m *Mutex) HeldSince(ctx context.Context) (time.Time, bool, error) {
	raw, err := m.kv.Get(ctx, m.key)
	if store.IsNotFound(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := parseTimestamp(raw)
	if err != nil {
		return time.Time{}, true, nil
	}
	return at, true, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse lock timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
