// Package schema decides whether a raw archive entry is fit to import.
//
// The Gate parses the entry as JSON and validates it against the schema
// bound to its record type. Records that fail are logged and skipped; the
// gate never halts a run.
//
// CUEValidator is the bundled Validator. Each schema identifier of the form
//
//	https://wordpress.org/schema/<name>.json
//
// resolves to the closed CUE definition #<name> in the embedded schemas/
// directory.
package schema
