package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Document is a parsed archive entry.
type Document struct {
	// Path is the entry name inside the archive, e.g. "posts/12.json".
	Path string
	// Raw is the entry body as read from the archive.
	Raw []byte
	// Value is Raw decoded into generic Go values.
	Value any
}

// Fields returns the document as a JSON object, or nil if it is not one.
func (d Document) Fields() map[string]any {
	m, _ := d.Value.(map[string]any)
	return m
}

// Violation is a single reason a document does not match its schema.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v Violation) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Result is the outcome of validating one document.
type Result struct {
	Valid      bool
	Violations []Violation
}

// Validator checks a document against a schema identified by schemaID.
//
// A returned error means the validator itself failed (for example an
// unknown schema identifier); it is distinct from an invalid document.
type Validator interface {
	Validate(doc Document, schemaID string) (Result, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(doc Document, schemaID string) (Result, error)

// Validate calls f.
func (f ValidatorFunc) Validate(doc Document, schemaID string) (Result, error) {
	return f(doc, schemaID)
}

// decode parses raw into a Document. It is the malformed-JSON check:
// invalid UTF-8 and a bare null count as malformed, not as documents.
func decode(path string, raw []byte) (Document, error) {
	if !utf8.Valid(raw) {
		return Document{}, errors.New("invalid UTF-8")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Document{}, err
	}
	if v == nil {
		return Document{}, errors.New("document is null")
	}
	return Document{Path: path, Raw: raw, Value: v}, nil
}
