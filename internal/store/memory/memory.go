// Package memory provides an in-process KV option store.
//
// It satisfies store.KV for tests and single-process imports where several
// goroutines play the part of concurrent invocations.
package memory

import (
	"context"
	"sync"

	"github.com/roach88/wxzimport/internal/store"
)

// Store is a mutex-guarded map.
//
// Thread-safety: All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	values map[string]string
}

var _ store.KV = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the value under key or store.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Add stores value under key only if key is absent.
func (s *Store) Add(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

