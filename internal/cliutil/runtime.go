package cliutil

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nonibytes/mango/internal/config"
	"github.com/nonibytes/mango/mango"
	"github.com/nonibytes/mango/mango/storage"
	"github.com/nonibytes/mango/mango/storage/memtable"
	"github.com/nonibytes/mango/mango/storage/pebblekv"
	"github.com/nonibytes/mango/mango/storage/postgres"
	"github.com/nonibytes/mango/mango/storage/sqlite"
	"github.com/nonibytes/mango/mango/storage/sqltable"
)

// Runtime is the document store and engine one command works against.
type Runtime struct {
	Store  storage.DocumentStore
	Engine *mango.Engine
	Log    *zap.Logger

	closers []func() error
}

// Open connects the configured backend and template store. The engine is not
// warmed; callers decide whether to restore templates first.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runtime{Log: log}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, mango.Wrap(mango.ErrStorage, "open "+cfg.Backend+" backend", err)
	}
	r.Store = store
	r.closers = append(r.closers, store.Close)

	kv, err := r.openKV(cfg)
	if err != nil {
		_ = r.closeAll()
		return nil, mango.Wrap(mango.ErrStorage, "open "+cfg.Templates.Store+" template store", err)
	}

	opts := mango.DefaultOptions()
	opts.Expiry = cfg.Cache.Expiry
	opts.PersistDelay = cfg.Cache.PersistDelay
	opts.KV = kv
	opts.Logger = log
	r.Engine = mango.NewEngine(opts)
	return r, nil
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.DocumentStore, error) {
	topts := sqltable.Options{Table: cfg.Table, Indexes: cfg.Indexes, Logger: log}
	switch cfg.Backend {
	case config.BackendMemory:
		return memtable.New(memtable.Options{Indexes: cfg.Indexes}), nil
	case config.BackendSQLite:
		return sqlite.NewWithDriver(cfg.SQLite.Path, cfg.SQLite.Driver).Open(ctx, topts)
	case config.BackendPostgres:
		return postgres.New(cfg.Postgres.DSN, cfg.Postgres.Schema).Open(ctx, topts)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (r *Runtime) openKV(cfg config.Config) (storage.KV, error) {
	switch cfg.Templates.Store {
	case config.StoreNone:
		return nil, nil
	case config.StorePebble:
		kv, err := pebblekv.Open(cfg.Templates.PebbleDir)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, kv.Close)
		return kv, nil
	case config.StoreSQL:
		t, ok := r.Store.(*sqltable.Table)
		if !ok {
			return nil, errors.New("sql template store requires an sqlite or postgres backend")
		}
		return sqltable.NewKV(t.DB(), t.Dialect()), nil
	}
	return nil, fmt.Errorf("unknown template store %q", cfg.Templates.Store)
}

// Close flushes pending templates, then releases the store and database.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	if r.Engine != nil {
		err = r.Engine.Close(ctx)
	}
	return errors.Join(err, r.closeAll())
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
