package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/vary/internal/config"
	"github.com/rzbill/vary/internal/runtime"
	httpserver "github.com/rzbill/vary/internal/server/http"
	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
	logpkg "github.com/rzbill/vary/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// indirection over os.Getenv so tests can stub environment lookups
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	cfg := &logpkg.Config{
		Level:  getenvDefault("VARY_LOG_LEVEL", "info"),
		Format: getenvDefault("VARY_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting vary server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("backend", opts.Config.StorageBackend),
		logpkg.Bool("enabled", opts.Config.Enabled),
		logpkg.Str("level", cfg.Level),
		logpkg.Str("format", cfg.Format),
	)

	hsrv := httpserver.New(rt)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Errorf("http error: %v", err)
		}
	}()

	<-sctx.Done()
	// Initiate graceful shutdown of the server before closing the runtime/DB to avoid races.
	hsrv.Close()
	wg.Wait()
	return nil
}
