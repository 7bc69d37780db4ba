// Package valkey provides a KV option store backed by Valkey (or Redis).
//
// Useful when invocations run on several hosts that share no filesystem.
// Insert-if-absent maps onto SET key value NX.
package valkey

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/roach88/wxzimport/internal/store"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
}

// Store implements store.KV over a valkey.Client.
type Store struct {
	client valkey.Client
}

var _ store.KV = (*Store)(nil)

// New connects to Valkey and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("create valkey client: address is required")
	}
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// Get returns the value under key or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Add stores value under key only if absent (SET NX).
// A nil reply means the key already existed.
func (s *Store) Add(ctx context.Context, key, value string) (bool, error) {
	err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Nx().Build()).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("add %q: %w", key, err)
	}
	return true, nil
}
