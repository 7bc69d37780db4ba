package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/wxzimport/internal/archive"
	"github.com/roach88/wxzimport/internal/config"
	"github.com/roach88/wxzimport/internal/cursor"
	"github.com/roach88/wxzimport/internal/engine"
	"github.com/roach88/wxzimport/internal/events"
	"github.com/roach88/wxzimport/internal/importer"
	"github.com/roach88/wxzimport/internal/lock"
	"github.com/roach88/wxzimport/internal/schema"
	"github.com/roach88/wxzimport/internal/store"
	"github.com/roach88/wxzimport/internal/store/memory"
	"github.com/roach88/wxzimport/internal/store/postgres"
	"github.com/roach88/wxzimport/internal/store/valkey"
)

// backend is everything one command needs from the outside world.
type backend struct {
	cfg     config.Config
	kv      store.KV
	target  *store.Store
	archive archive.Archive
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openBackend connects the option store and the target store. With
// withArchive the configured archive is resolved and opened as well.
func openBackend(ctx context.Context, cfg config.Config, withArchive bool) (*backend, error) {
	b := &backend{cfg: cfg}
	if err := b.open(ctx, withArchive); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) open(ctx context.Context, withArchive bool) error {
	cfg := b.cfg

	var sqliteKV *store.Store
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open option store", err)
		}
		b.closers = append(b.closers, st.Close)
		sqliteKV = st
		b.kv = st
	case config.DriverMemory:
		b.kv = memory.New()
	case config.DriverValkey:
		st, err := valkey.New(ctx, valkey.Config{Addr: cfg.Store.DSN, Password: cfg.Store.Password})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open option store", err)
		}
		b.closers = append(b.closers, st.Close)
		b.kv = st
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open option store", err)
		}
		b.closers = append(b.closers, st.Close)
		b.kv = st
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown store driver %q", cfg.Store.Driver))
	}
	b.kv = store.WithPrefix(b.kv, cfg.Store.Prefix)

	// Imported records share the option database when both name one file.
	if sqliteKV != nil && cfg.Store.Target == cfg.Store.DSN {
		b.target = sqliteKV
	} else {
		target, err := store.Open(cfg.Store.Target)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open target store", err)
		}
		b.closers = append(b.closers, target.Close)
		b.target = target
	}

	if !withArchive {
		return nil
	}
	if cfg.Archive == "" {
		return NewExitError(ExitCommandError, "no archive configured: set archive in the config file or pass --archive")
	}

	var fetcher *archive.Fetcher
	if cfg.MinIO.Endpoint != "" {
		f, err := archive.NewFetcher(cfg.MinIO)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create object storage client", err)
		}
		fetcher = f
	}
	path, err := fetcher.Resolve(ctx, cfg.Archive, cfg.CacheDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fetch archive", err)
	}
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "archive not found", err)
	}
	zr, err := archive.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	b.closers = append(b.closers, zr.Close)
	b.archive = zr
	return nil
}

// registry binds every configured type to the journal importer.
func (b *backend) registry() (*importer.Registry, error) {
	order, err := b.cfg.Order()
	if err != nil {
		return nil, err
	}
	reg := importer.NewRegistry()
	journal := importer.Journal(b.target, time.Now)
	for _, t := range order {
		reg.Register(t, journal)
	}
	return reg, nil
}

// engine builds an engine over the backend. ev may be nil.
func (b *backend) engine(v schema.Validator, ev *events.Logger, logger *slog.Logger, extra ...engine.Option) (*engine.Engine, error) {
	reg, err := b.registry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid types", err)
	}
	order, _ := b.cfg.Order()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithOrder(order),
		engine.WithBudget(b.cfg.Budget),
		engine.WithLockOptions(
			lock.WithStaleAfter(b.cfg.Lock.StaleAfter),
			lock.WithAttempts(b.cfg.Lock.Attempts),
			lock.WithRetryInterval(b.cfg.Lock.RetryInterval),
		),
		engine.WithCursorOptions(
			cursor.WithStaleAfter(b.cfg.Claim.StaleAfter),
			cursor.WithDrainInterval(b.cfg.Claim.DrainInterval),
		),
	}
	if ev != nil {
		opts = append(opts, engine.WithEvents(ev))
	}
	opts = append(opts, extra...)

	// A nil *archive.Zip must not become a non-nil interface.
	var a archive.Archive
	if b.archive != nil {
		a = b.archive
	}
	return engine.New(b.kv, a, reg, v, opts...), nil
}
