//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wxzimport/internal/store"
)

func setupPostgres(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Fatal("TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddGetDelete(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	key := "test_" + uuid.NewString()
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	ok, err := s.Add(ctx, key, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Add(ctx, key, "2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, "3"))
	v, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}
