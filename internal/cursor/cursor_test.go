package cursor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/clock"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/lock"
	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/store"
	"github.com/roach88/wxzimport/internal/store/memory"
	"github.com/roach88/wxzimport/internal/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type sizes map[record.Type]int

func (s sizes) Len(t record.Type) int { return s[t] }

var order = []record.Type{record.Users, record.Terms, record.Posts}

// fixture builds cursors for several simulated invocations sharing one store.
type fixture struct {
	kv    *memory.Store
	clock *testutil.FakeClock
	sizes sizes
	log   bytes.Buffer
}

func newFixture(s sizes) *fixture {
	return &fixture{kv: memory.New(), clock: testutil.NewFakeClock(epoch), sizes: s}
}

func (f *fixture) cursor(owner string, opts ...Option) *Cursor {
	return f.cursorWithClock(owner, f.clock, opts...)
}

func (f *fixture) cursorWithClock(owner string, c clock.Clock, opts ...Option) *Cursor {
	m := lock.New(f.kv, c, lock.WithRetryInterval(time.Millisecond), lock.WithAttempts(3))
	base := []Option{WithEvents(events.New(&f.log, nil))}
	return New(f.kv, m, c, f.sizes, order, owner, append(base, opts...)...)
}

func claimAll(t *testing.T, c *Cursor) []Claim {
	t.Helper()
	var out []Claim
	for {
		claim, err := c.ClaimNext(context.Background())
		if errors.Is(err, ErrExhausted) {
			return out
		}
		require.NoError(t, err)
		out = append(out, claim)
		require.NoError(t, c.Complete(context.Background(), claim))
	}
}

func label(c Claim) string { return fmt.Sprintf("%s/%d", c.Type, c.Index) }

func labels(claims []Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = label(c)
	}
	return out
}

func TestClaimNext_WalksTypesInOrder(t *testing.T) {
	f := newFixture(sizes{record.Users: 1, record.Terms: 2, record.Posts: 2})
	c := f.cursor("a")

	got := claimAll(t, c)
	assert.Equal(t, []string{"users/0", "terms/0", "terms/1", "posts/0", "posts/1"}, labels(got))

	st, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, record.None, st.Type)
	assert.Empty(t, st.InFlight)
	assert.Empty(t, f.clock.Sleeps(), "sequential processing never waits")
}

func TestClaimNext_SkipsEmptyTypes(t *testing.T) {
	f := newFixture(sizes{record.Posts: 1})
	c := f.cursor("a")

	got := claimAll(t, c)
	assert.Equal(t, []string{"posts/0"}, labels(got))
}

func TestClaimNext_EmptyArchiveIsExhausted(t *testing.T) {
	f := newFixture(sizes{})
	c := f.cursor("a")

	_, err := c.ClaimNext(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)

	// Still exhausted on the next call, without waiting.
	_, err = c.ClaimNext(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, f.clock.Sleeps())
}

func TestClaimNext_ConcurrentClaimsWithinType(t *testing.T) {
	f := newFixture(sizes{record.Terms: 3})
	a := f.cursor("a")
	b := f.cursor("b")
	ctx := context.Background()

	c1, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	c2, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	c3, err := a.ClaimNext(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"terms/0", "terms/1", "terms/2"}, labels([]Claim{c1, c2, c3}))
	assert.Equal(t, "b", c2.Owner)

	st, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Index)
	require.Len(t, st.InFlight, 3)
	assert.Equal(t, epoch.UnixMilli(), st.InFlight[0].ClaimedAt)
}

func TestClaimNext_WaitsForTypeToDrain(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1, record.Posts: 1})
	a := f.cursor("a")
	b := f.cursor("b")
	ctx := context.Background()

	first, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/0", label(first))

	// b finds terms exhausted but still in flight. It sleeps; while it
	// sleeps, a finishes.
	f.clock.OnSleep = func(time.Duration) {
		f.clock.OnSleep = nil
		require.NoError(t, a.Complete(ctx, first))
	}

	next, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "posts/0", label(next))
	assert.Equal(t, []time.Duration{DefaultDrainInterval}, f.clock.Sleeps())
}

func TestClaimNext_ReclaimsStaleInFlight(t *testing.T) {
	f := newFixture(sizes{record.Terms: 3})
	a := f.cursor("a")
	b := f.cursor("b")
	ctx := context.Background()

	first, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/0", label(first))

	f.clock.Advance(DefaultStaleAfter + time.Second)

	retried, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/0", label(retried))
	assert.True(t, retried.Retry)
	assert.Equal(t, "b", retried.Owner)

	assert.Contains(t, f.log.String(), "[warning][claim-timeout] Record 0 of type terms timed out after 31s")

	// The original owner finishing late does not clear b's claim.
	require.NoError(t, a.Complete(ctx, first))
	st, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, st.InFlight, 1)
	assert.Equal(t, "b", st.InFlight[0].Owner)

	// Fresh claims continue from the highest index.
	next, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/1", label(next))
	assert.False(t, next.Retry)
}

func TestClaimNext_AtThresholdIsNotStale(t *testing.T) {
	f := newFixture(sizes{record.Terms: 2})
	a := f.cursor("a")
	ctx := context.Background()

	_, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	f.clock.Advance(DefaultStaleAfter)

	next, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/1", label(next))
	assert.False(t, next.Retry)
}

func TestComplete_CancelsPendingRetry(t *testing.T) {
	f := newFixture(sizes{record.Terms: 3})
	a := f.cursor("a")
	b := f.cursor("b")
	ctx := context.Background()

	c0, err := a.ClaimNext(ctx)
	require.NoError(t, err)
	c1, err := a.ClaimNext(ctx)
	require.NoError(t, err)

	f.clock.Advance(DefaultStaleAfter + time.Second)

	// Both claims are purged; b retries the lower one and queues the other.
	r0, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/0", label(r0))
	st, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, st.Retry)

	// a finishes terms/1 late; the queued retry is dropped.
	require.NoError(t, a.Complete(ctx, c1))
	st, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Retry)

	next, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/2", label(next))
	_ = c0
}

func TestClaimNext_StaleClaimUnblocksBarrier(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1, record.Posts: 1})
	a := f.cursor("a")
	b := f.cursor("b")
	ctx := context.Background()

	_, err := a.ClaimNext(ctx)
	require.NoError(t, err)

	// a never completes. b waits until the claim goes stale, then retries it.
	retried, err := b.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "terms/0", label(retried))
	assert.True(t, retried.Retry)

	sleeps := f.clock.Sleeps()
	require.NotEmpty(t, sleeps)
	for _, d := range sleeps {
		assert.Equal(t, DefaultDrainInterval, d)
	}
	assert.Greater(t, time.Duration(len(sleeps))*DefaultDrainInterval, DefaultStaleAfter)
}

func TestClaimNext_IndexNeverDecreases(t *testing.T) {
	f := newFixture(sizes{record.Terms: 5})
	a := f.cursor("a")
	ctx := context.Background()

	last := -1
	for range 5 {
		claim, err := a.ClaimNext(ctx)
		require.NoError(t, err)
		st, err := a.Load(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.Index, last)
		last = st.Index
		// Complete out of order every other time.
		if claim.Index%2 == 0 {
			require.NoError(t, a.Complete(ctx, claim))
		}
	}
}

func TestClaimNext_ResumesAcrossInvocations(t *testing.T) {
	f := newFixture(sizes{record.Terms: 2, record.Posts: 1})
	ctx := context.Background()

	first := f.cursor("a")
	claim, err := first.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Complete(ctx, claim))

	second := f.cursor("b")
	got := claimAll(t, second)
	assert.Equal(t, []string{"terms/1", "posts/0"}, labels(got))
}

func TestClaimNext_LockHeldLeavesCursorUntouched(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1})
	ctx := context.Background()

	holder := lock.New(f.kv, f.clock)
	require.NoError(t, holder.Acquire(ctx))

	c := f.cursor("a")
	_, err := c.ClaimNext(ctx)
	require.Error(t, err)
	assert.True(t, lock.IsNotAcquired(err))

	_, err = f.kv.Get(ctx, DefaultKey)
	assert.True(t, store.IsNotFound(err))
}

func TestClaimNext_CorruptCursor(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1})
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, DefaultKey, "{not json"))

	_, err := f.cursor("a").ClaimNext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load cursor")

	// The lock was released despite the failure.
	_, err = f.kv.Get(ctx, lock.DefaultKey)
	assert.True(t, store.IsNotFound(err))
}

func TestClaimNext_UnknownPersistedType(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1})
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, DefaultKey, `{"type":"comments","index":0,"in_flight":[]}`))

	_, err := f.cursor("a").ClaimNext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comments")
}

func TestClaimNext_ContextCancelledWhileDraining(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1, record.Posts: 1})
	a := f.cursor("a")
	b := f.cursor("b")

	_, err := a.ClaimNext(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.clock.OnSleep = func(time.Duration) { cancel() }

	_, err = b.ClaimNext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	f := newFixture(sizes{record.Terms: 2})
	c := f.cursor("a")
	ctx := context.Background()

	_ = claimAll(t, c)
	require.NoError(t, c.Reset(ctx))

	st, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{Type: record.Users, Index: -1, InFlight: []InFlight{}}, st)
}

func TestWithKey(t *testing.T) {
	f := newFixture(sizes{record.Terms: 1})
	c := f.cursor("a", WithKey("progress"))
	ctx := context.Background()

	_, err := c.ClaimNext(ctx)
	require.NoError(t, err)

	_, err = f.kv.Get(ctx, "progress")
	require.NoError(t, err)
	_, err = f.kv.Get(ctx, DefaultKey)
	assert.True(t, store.IsNotFound(err))
}

// TestClaimNext_ConcurrentInvocations runs several invocations against one
// store with real time and checks the cursor's ordering guarantees.
func TestClaimNext_ConcurrentInvocations(t *testing.T) {
	s := sizes{record.Users: 3, record.Terms: 20, record.Posts: 20}
	kv := memory.New()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		done     = map[record.Type]int{}
		seen     = map[string]int{}
		barriers []string
	)

	const workers = 6
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := lock.New(kv, clock.Real{}, lock.WithRetryInterval(time.Millisecond), lock.WithAttempts(10000))
			c := New(kv, m, clock.Real{}, s, order, fmt.Sprintf("w%d", w), WithDrainInterval(time.Millisecond))
			for {
				claim, err := c.ClaimNext(ctx)
				if errors.Is(err, ErrExhausted) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				seen[label(claim)]++
				// Every record of the preceding types must be done already.
				for _, prev := range order[:record.IndexOf(order, claim.Type)] {
					if done[prev] != s[prev] {
						barriers = append(barriers, label(claim))
					}
				}
				done[claim.Type]++
				mu.Unlock()

				if !assert.NoError(t, c.Complete(ctx, claim)) {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, barriers, "claims issued before the preceding type drained")
	assert.Len(t, seen, 43)
	for k, n := range seen {
		assert.Equal(t, 1, n, "claimed more than once: %s", k)
	}
}
