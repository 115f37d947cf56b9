package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/rzbill/vary/internal/config"
	"github.com/rzbill/vary/internal/engine"
	"github.com/rzbill/vary/internal/experiment"
	"github.com/rzbill/vary/internal/recorder"
	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
	"github.com/rzbill/vary/internal/store"
	logpkg "github.com/rzbill/vary/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, config, catalog, engine, and recorder for a
// single-node instance. Each Runtime owns its dependencies; nothing is
// process-global, so tests can run several side by side.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	catalog  *experiment.Catalog
	store    store.Store
	engine   *engine.Engine
	recorder *recorder.Recorder
}

// Open initializes storage and the component graph.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	// The server cannot host a client-held store: that state lives with
	// the caller.
	if opts.Config.StorageBackend == cfgpkg.BackendClient {
		return nil, fmt.Errorf("runtime: storageBackend=client is only valid for embedded use")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval})
	if err != nil {
		return nil, err
	}

	catalog := experiment.NewCatalog()
	if path := opts.Config.ExperimentsFile; path != "" {
		exps, err := experiment.LoadFile(path)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := catalog.Load(exps); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("experiments loaded", logpkg.Str("file", path), logpkg.Int("count", len(exps)))
	}

	st, err := store.ForBackend(opts.Config.StorageBackend, store.BackendOptions{
		DB:        db,
		RemoteURL: opts.Config.RemoteURL,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	rec := recorder.New(recorder.NewPebbleSink(db), recorder.Options{
		Logger:    logger,
		QueueSize: opts.Config.EventQueueSize,
	})

	eng := engine.New(catalog, st, engine.Options{
		Logger:       logger,
		Disabled:     !opts.Config.Enabled,
		TTL:          opts.Config.SessionTimeout(),
		StoreTimeout: opts.Config.StoreTimeout(),
	})

	return &Runtime{
		db:       db,
		config:   opts.Config,
		catalog:  catalog,
		store:    st,
		engine:   eng,
		recorder: rec,
	}, nil
}

// Close flushes the recorder and closes underlying resources.
func (r *Runtime) Close() error {
	if r.recorder != nil {
		r.recorder.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(_ context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Catalog returns the experiment registry.
func (r *Runtime) Catalog() *experiment.Catalog { return r.catalog }

// Engine returns the assignment engine.
func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Recorder returns the event recorder.
func (r *Runtime) Recorder() *recorder.Recorder { return r.recorder }

// Assignments returns the sticky-assignment store.
func (r *Runtime) Assignments() store.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
