package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/wxzimport/internal/schema"
	"github.com/roach88/wxzimport/internal/store"
)

// Sink persists imported documents. Implemented by *store.Store.
type Sink interface {
	WriteRecord(ctx context.Context, rec store.Record) (bool, error)
}

// Journal returns a handler that writes each document into sink, keyed by
// type and archive path. Re-importing a record after its claim was
// reclaimed leaves the first copy in place.
func Journal(sink Sink, now func() time.Time) Handler {
	return HandlerFunc(func(ctx context.Context, rc *Context, doc schema.Document) error {
		inserted, err := sink.WriteRecord(ctx, store.Record{
			Type:       string(rc.Type),
			Source:     doc.Path,
			Body:       string(doc.Raw),
			Invocation: rc.Invocation,
			ImportedAt: now(),
		})
		if err != nil {
			return fmt.Errorf("journal %s: %w", doc.Path, err)
		}
		if !inserted && rc.Logger != nil {
			rc.Logger.Debug("record already imported", "path", doc.Path)
		}
		return nil
	})
}
