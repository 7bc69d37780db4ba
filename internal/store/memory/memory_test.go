package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/store"
)

func TestStore_GetSetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, s.values)
}

func TestStore_AddIsInsertIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.Add(ctx, "lock", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Add(ctx, "lock", "2")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := s.Get(ctx, "lock")
	assert.Equal(t, "1", v)
}

func TestStore_AddConcurrentSingleWinner(t *testing.T) {
	s := New()
	const goroutines = 100

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Add(context.Background(), "lock", "x"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
