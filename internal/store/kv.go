package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// KV is the persistent option store shared by every invocation.
//
// Implementations must make Add atomic with respect to concurrent callers in
// other processes: exactly one Add for an absent key returns true.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Add stores value under key only if key is absent.
	// Returns false (and no error) when the key already exists.
	Add(ctx context.Context, key, value string) (bool, error)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// prefixed namespaces every key of an underlying KV.
type prefixed struct {
	kv     KV
	prefix string
}

// WithPrefix returns a KV that prepends prefix to every key.
// Several imports can share one backend under different prefixes.
func WithPrefix(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	return &prefixed{kv: kv, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.kv.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.kv.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Add(ctx context.Context, key, value string) (bool, error) {
	return p.kv.Add(ctx, p.prefix+key, value)
}
