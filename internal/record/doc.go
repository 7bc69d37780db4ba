// Package record defines the record types carried by a WXZ archive.
//
// This package contains type definitions only. All other internal packages
// import record; record imports nothing internal.
//
// Key design constraints:
//   - The global processing order is fixed (DefaultOrder)
//   - Type names double as archive directory names
//   - Schema identifiers are stable URIs, resolved by the schema package
package record
