// Package daemon wires the catalog, broker, object store, workers, and
// reconciler into one supervised process and enforces single-instance
// execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/logging"
	"fileforge/internal/metrics"
	"fileforge/internal/objectstore"
	"fileforge/internal/orchestrator"
	"fileforge/internal/worker"
)

// Daemon coordinates the background services.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *catalog.Store
	objects    objectstore.Store
	bus        broker.Broker
	svc        *orchestrator.Service
	reconciler *orchestrator.Reconciler
	runtime    *worker.Runtime
	metrics    *metrics.Metrics
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options carries the daemon's assembled dependencies.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *catalog.Store
	Objects    objectstore.Store
	Bus        broker.Broker
	Service    *orchestrator.Service
	Reconciler *orchestrator.Reconciler
	Runtime    *worker.Runtime
	Metrics    *metrics.Metrics
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Service == nil ||
		opts.Reconciler == nil || opts.Runtime == nil {
		return nil, errors.New("daemon requires config, store, service, reconciler, and runtime")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(opts.Config.Paths.DataDir, "fileforged.lock")
	d := &Daemon{
		cfg:        opts.Config,
		logger:     logger,
		store:      opts.Store,
		objects:    opts.Objects,
		bus:        opts.Bus,
		svc:        opts.Service,
		reconciler: opts.Reconciler,
		runtime:    opts.Runtime,
		metrics:    opts.Metrics,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	server, err := newAPIServer(opts.Config, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the instance lock and launches workers, the reconciler,
// and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fileforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for _, name := range d.cfg.WorkerFamilies() {
		family, ok := catalog.ParseFamily(name)
		if !ok {
			continue
		}
		d.wg.Add(1)
		go func(f catalog.Family) {
			defer d.wg.Done()
			_ = d.runtime.Run(runCtx, f)
		}(family)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.reconciler.Run(runCtx)
	}()

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.wg.Wait()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("fileforge daemon started",
		logging.String("lock", d.lockPath),
		logging.Any("families", d.cfg.WorkerFamilies()))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("fileforge daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.bus != nil {
		errs = append(errs, d.bus.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Service exposes the orchestrator for the API layer.
func (d *Daemon) Service() *orchestrator.Service {
	return d.svc
}

// APIAddr returns the bound API address, or empty when the API is off.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}
