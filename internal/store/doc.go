// Package store provides the shared persistent state for WXZ imports.
//
// Two concerns live here:
//   - Options: a key-value option store (KV) holding run stage, progress
//     cursor and lock timestamp. This is the only channel between
//     concurrent invocations.
//   - Records: the default target store, an idempotent table of imported
//     documents keyed by (type, source path).
//
// # Critical Patterns
//
// Atomic insert-if-absent:
//   - KV.Add is the only primitive used for lock acquisition
//   - SQLite: INSERT ... ON CONFLICT(name) DO NOTHING + RowsAffected
//
// Idempotent record writes:
//   - UNIQUE(type, source) with ON CONFLICT DO NOTHING
//   - A record reclaimed and imported twice is stored once
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Other KV backends live in the memory, valkey and postgres subpackages.
package store
