// Package archive reads WXZ archives and indexes their records.
//
// A WXZ archive is a zip container holding one JSON document per record,
// grouped in per-type directories:
//
//	terms/1.json
//	terms/2.json
//	posts/1.json
//
// The core needs only random access to entries by position (Archive). The
// Entry Index groups positions by record type once per invocation; the
// positions, not names, are what the progress cursor counts through.
package archive
