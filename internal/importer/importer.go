// Package importer routes validated documents to per-type handlers.
//
// Handlers are registered explicitly in a Registry at startup; there is no
// reflection or name-based lookup. A handler failure is local to its
// record: the run logs it and moves on.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/schema"
)

// Context carries per-record run state into a handler.
type Context struct {
	// Invocation identifies the running invocation.
	Invocation string
	// Type and Path identify the record being imported.
	Type record.Type
	Path string
	// Events is the run's event log.
	Events *events.Logger
	// Logger is the structured logger, scoped to this record.
	Logger *slog.Logger
}

// Handler imports one validated document.
type Handler interface {
	Import(ctx context.Context, rc *Context, doc schema.Document) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, rc *Context, doc schema.Document) error

// Import calls f.
func (f HandlerFunc) Import(ctx context.Context, rc *Context, doc schema.Document) error {
	return f(ctx, rc, doc)
}

// UnknownTypeError is returned by Dispatch for a type with no handler.
type UnknownTypeError struct {
	Type record.Type
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no importer registered for record type %q", e.Type)
}

// Registry maps record types to handlers.
//
// Thread-safety: Safe for concurrent use; registration normally happens
// once before the run starts.
type Registry struct {
	mu       sync.RWMutex
	handlers map[record.Type]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[record.Type]Handler)}
}

// Register binds h to t, replacing any previous binding.
func (r *Registry) Register(t record.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Has reports whether t has a handler.
func (r *Registry) Has(t record.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Types filters order down to the types that have handlers, keeping its
// sequence. Entries of other types are never claimed.
func (r *Registry) Types(order []record.Type) []record.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.DeleteFunc(slices.Clone(order), func(t record.Type) bool {
		_, ok := r.handlers[t]
		return !ok
	})
}

// Dispatch invokes the handler for rc.Type.
func (r *Registry) Dispatch(ctx context.Context, rc *Context, doc schema.Document) error {
	r.mu.RLock()
	h, ok := r.handlers[rc.Type]
	r.mu.RUnlock()
	if !ok {
		return &UnknownTypeError{Type: rc.Type}
	}
	return h.Import(ctx, rc, doc)
}
