// Package cursor implements the persisted progress cursor of an import run.
//
// The cursor records which record type is being processed, the last index
// claimed within that type, and the set of claims that are in flight
// (handed to some invocation but not yet confirmed complete). It is the
// single source of truth for "what has been claimed" and is only
// read-modify-written while the lock is held.
//
// # Guarantees
//
//   - Fresh claims within a type are handed out in strictly increasing
//     index order across all invocations combined.
//   - Types are processed in the fixed order with a drain barrier: a type
//     is left only once its sequence is exhausted and no claim of it is
//     in flight or awaiting retry.
//   - A claim older than the staleness threshold is purged and queued for
//     retry, so work abandoned by a crashed invocation is picked up again.
//     This makes processing at-least-once.
//
// Validation and import happen outside the critical section; ClaimNext and
// Complete each hold the lock only for one cursor read-modify-write.
package cursor
