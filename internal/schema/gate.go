package schema

import (
	"log/slog"

	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/record"
)

// Gate turns raw entries into validated documents.
type Gate struct {
	validator Validator
	events    *events.Logger
	logger    *slog.Logger
}

// NewGate creates a Gate. A nil logger uses slog.Default().
func NewGate(v Validator, ev *events.Logger, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if ev == nil {
		ev = events.New(nil, logger)
	}
	return &Gate{validator: v, events: ev, logger: logger}
}

// Check parses raw and validates it against the schema for t.
//
// It returns false (and logs why) when the entry is malformed JSON, when
// no schema is bound to t, when the document does not match, or when the
// validator fails. Invalid records are skipped by the caller.
func (g *Gate) Check(raw []byte, t record.Type, path string) (Document, bool) {
	doc, err := decode(path, raw)
	if err != nil {
		g.events.Warning(events.CodeInvalidJSON, "Invalid JSON in %s", path)
		g.logger.Debug("json decode failed", "path", path, "error", err)
		return Document{}, false
	}

	schemaID, ok := record.SchemaID(t)
	if !ok {
		g.events.Error(events.CodeValidationException, "No schema is registered for record type %q.", t)
		return Document{}, false
	}

	result, err := g.validator.Validate(doc, schemaID)
	if err != nil {
		g.events.Error(events.CodeValidationException, "%s", err.Error())
		return Document{}, false
	}
	if !result.Valid {
		g.events.Warning(events.CodeSchemaViolation,
			"The data in %s can not be validated against the schema.", path)
		for _, v := range result.Violations {
			g.logger.Debug("schema violation", "path", path, "field", v.Path, "reason", v.Message)
		}
		return Document{}, false
	}
	return doc, true
}
