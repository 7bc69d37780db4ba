// Package engine runs one time-boxed invocation of an archive import.
//
// An import is a sequence of invocations against one shared store. Each
// invocation reads the persisted stage and continues from there:
//
//	start    reset the progress cursor and move to objects
//	objects  claim, validate, dispatch and complete records one at a time
//	finalize nothing left to do
//
// The per-record loop yields after each record once the Governor predicts
// the budget would be overrun. The persisted stage stays objects, so the
// next invocation resumes at the next unclaimed record.
//
// Record-level failures (unreadable entry, malformed JSON, schema
// violation, importer error) are logged and skipped. Only lock, store and
// cancellation failures halt an invocation, as a *RunError.
//
// Concurrency comes only from several invocations sharing the store. Run
// itself is sequential; all shared state goes through the cursor, which
// serializes its read-modify-writes under the lock.
package engine
