package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/logging"
	"fileforge/internal/metrics"
	"fileforge/internal/worker"
)

// Reconciler is the periodic sweep that repairs stuck work: running jobs
// whose worker stopped heartbeating go back to their queue, queued jobs
// whose envelope was lost get republished, and pipelines stalled between
// steps are advanced.
type Reconciler struct {
	store      *catalog.Store
	dispatcher *worker.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	interval         time.Duration
	queuedGrace      time.Duration
	heartbeatTimeout time.Duration
}

// NewReconciler builds a reconciler from configuration.
func NewReconciler(
	store *catalog.Store,
	dispatcher *worker.Dispatcher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		store:            store,
		dispatcher:       dispatcher,
		metrics:          m,
		logger:           logging.NewComponentLogger(logger, "reconciler"),
		interval:         time.Duration(cfg.Workflow.ReconcileInterval) * time.Second,
		queuedGrace:      time.Duration(cfg.Workflow.QueuedGracePeriod) * time.Second,
		heartbeatTimeout: time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Run sweeps until the context is canceled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("reconciler started",
		logging.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reconciliation pass. Exported so tests and the CLI
// can trigger a pass without the timer.
func (r *Reconciler) Sweep(ctx context.Context) {
	r.reclaimStaleRunning(ctx)
	r.republishStaleQueued(ctx)
	r.recordQueueDepths(ctx)
}

// reclaimStaleRunning sends jobs with expired heartbeats back to their
// queue. The requeue is conditional, so a worker that completes just
// before the sweep wins.
func (r *Reconciler) reclaimStaleRunning(ctx context.Context) {
	cutoff := time.Now().Add(-r.heartbeatTimeout)
	stale, err := r.store.StaleRunning(ctx, cutoff)
	if err != nil {
		r.logger.Warn("stale running query failed", logging.Error(err))
		return
	}
	for _, job := range stale {
		ok, err := r.store.RequeueJob(ctx, job.ID, "reclaimed: worker heartbeat expired")
		if err != nil {
			r.logger.Warn("reclaim failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
			continue
		}
		if !ok {
			continue
		}
		r.logger.Warn("reclaimed job from dead worker",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldKind, string(job.Kind)),
			logging.Int(logging.FieldAttempt, job.Attempts))
		if err := r.dispatcher.Publish(ctx, job); err != nil {
			// Still queued; the next sweep republishes it.
			r.logger.Warn("republish after reclaim failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}
}

// republishStaleQueued resends envelopes for jobs that stayed queued past
// the grace period. Duplicate envelopes are harmless: the claim transition
// admits exactly one worker.
func (r *Reconciler) republishStaleQueued(ctx context.Context) {
	cutoff := time.Now().Add(-r.queuedGrace)
	queued, err := r.store.QueuedSince(ctx, cutoff)
	if err != nil {
		r.logger.Warn("stale queued query failed", logging.Error(err))
		return
	}
	for _, job := range queued {
		if err := r.dispatcher.Publish(ctx, job); err != nil {
			r.logger.Warn("republish failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
			continue
		}
		if _, err := r.store.TouchQueued(ctx, job.ID); err != nil {
			r.logger.Warn("touch after republish failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
		r.logger.Info("republished stale queued job",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldQueue, job.Kind.Family().QueueName()))
	}
}

func (r *Reconciler) recordQueueDepths(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	depths, err := r.store.QueueDepths(ctx)
	if err != nil {
		r.logger.Warn("queue depth query failed", logging.Error(err))
		return
	}
	for family, depth := range depths {
		r.metrics.QueueDepth.WithLabelValues(string(family)).Set(float64(depth))
	}
}
