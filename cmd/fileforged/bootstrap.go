package main

import (
	"fmt"
	"log/slog"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/daemon"
	"fileforge/internal/metrics"
	"fileforge/internal/objectstore"
	"fileforge/internal/orchestrator"
	"fileforge/internal/processors"
	"fileforge/internal/worker"
)

// buildRegistry registers a processor for every action kind the daemon
// can route. Families the config excludes still register; their queues
// are simply never consumed.
func buildRegistry(cfg *config.Config) (*worker.Registry, error) {
	security, err := processors.NewSecurityProcessor(cfg.Security)
	if err != nil {
		return nil, err
	}

	registry := worker.NewRegistry()
	for _, p := range []worker.Processor{
		processors.NewImageProcessor(cfg.Image),
		processors.NewVideoProcessor(cfg.Video),
		security,
		processors.NewAIProcessor(cfg.AI),
	} {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	objects, err := objectstore.NewFilesystem(cfg.ObjectStore.Dir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open object store: %w", err)
	}

	bus, err := broker.Open(cfg.Broker)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open broker: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build processor registry: %w", err)
	}

	m := metrics.New()
	dispatcher := worker.NewDispatcher(store, bus, logger)
	svc := orchestrator.New(store, objects, bus, dispatcher, m, cfg, logger)
	reconciler := orchestrator.NewReconciler(store, dispatcher, m, cfg, logger)
	runtime := worker.NewRuntime(store, bus, objects, registry, dispatcher, m, cfg, logger)

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Objects:    objects,
		Bus:        bus,
		Service:    svc,
		Reconciler: reconciler,
		Runtime:    runtime,
		Metrics:    m,
	})
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return nil, err
	}
	return d, nil
}
