package worker

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/logging"
	"fileforge/internal/metrics"
	"fileforge/internal/objectstore"
	"fileforge/internal/services"
)

// Runtime consumes one queue family and executes its jobs.
type Runtime struct {
	store      *catalog.Store
	bus        broker.Broker
	objects    objectstore.Store
	registry   *Registry
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	jobTimeout        time.Duration
	maxAttempts       int
	retryBaseDelay    time.Duration
	consumeWait       time.Duration
	heartbeatInterval time.Duration
}

// NewRuntime builds a worker runtime from configuration.
func NewRuntime(
	store *catalog.Store,
	bus broker.Broker,
	objects objectstore.Store,
	registry *Registry,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runtime{
		store:             store,
		bus:               bus,
		objects:           objects,
		registry:          registry,
		dispatcher:        dispatcher,
		metrics:           m,
		logger:            logger,
		jobTimeout:        time.Duration(cfg.Workers.JobTimeout) * time.Second,
		maxAttempts:       cfg.Workers.MaxAttempts,
		retryBaseDelay:    time.Duration(cfg.Workers.RetryBaseDelay) * time.Second,
		consumeWait:       time.Duration(cfg.Workers.ConsumeWait) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
	}
}

// Run consumes the family's queue until the context is canceled.
func (r *Runtime) Run(ctx context.Context, family catalog.Family) error {
	queue := family.QueueName()
	logger := logging.NewComponentLogger(r.logger, "worker-"+string(family))
	logger.Info("worker started", logging.String(logging.FieldQueue, queue))

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("worker stopped")
			return nil
		}
		delivery, err := r.bus.Consume(ctx, queue, r.consumeWait)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker stopped")
				return nil
			}
			logger.Warn("consume failed", logging.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if delivery == nil {
			continue
		}
		r.handle(ctx, logger, delivery)
	}
}

func (r *Runtime) handle(ctx context.Context, logger *slog.Logger, delivery *broker.Delivery) {
	env := delivery.Envelope
	logger = logger.With(
		logging.String(logging.FieldJobID, env.JobID),
		logging.String(logging.FieldKind, env.Kind))

	job, err := r.store.GetJob(ctx, env.JobID)
	if err != nil {
		logger.Warn("load job failed", logging.Error(err))
		_ = delivery.Nack(r.retryBaseDelay)
		return
	}
	if job == nil {
		// The file and its pipeline were deleted after publish.
		logger.Debug("dropping envelope for deleted job")
		_ = delivery.Ack()
		return
	}
	if job.Status.IsTerminal() {
		// Duplicate delivery of finished work.
		logger.Debug("dropping envelope for terminal job",
			logging.String("status", string(job.Status)))
		_ = delivery.Ack()
		return
	}

	claimed, err := r.store.ClaimJob(ctx, job.ID)
	if err != nil {
		logger.Warn("claim failed", logging.Error(err))
		_ = delivery.Nack(r.retryBaseDelay)
		return
	}
	if !claimed {
		// Another worker holds the job, or it is pending again after a
		// reclaim. Either way a fresh envelope will follow.
		logger.Debug("lost claim race", logging.String("status", string(job.Status)))
		_ = delivery.Ack()
		return
	}

	job, err = r.store.GetJob(ctx, job.ID)
	if err != nil || job == nil {
		logger.Warn("reload claimed job failed", logging.Error(err))
		_ = delivery.Nack(r.retryBaseDelay)
		return
	}
	logger = logger.With(logging.Int(logging.FieldAttempt, job.Attempts))
	logger.Info("claimed job", logging.Int("position", job.Position))

	stopHeartbeat := r.startHeartbeat(ctx, job.ID)
	outcome := r.execute(ctx, logger, job)
	stopHeartbeat()

	switch {
	case outcome.err == nil:
		if r.metrics != nil {
			r.metrics.JobsProcessed.WithLabelValues(string(job.Kind)).Inc()
			r.metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(outcome.elapsed.Seconds())
		}
		_ = delivery.Ack()
		if err := r.dispatcher.Advance(ctx, job.PipelineID); err != nil {
			logger.Warn("advance pipeline failed", logging.Error(err))
		}
	case services.Retryable(outcome.err) && job.Attempts < r.maxAttempts:
		msg := outcome.err.Error()
		if ok, reqErr := r.store.RequeueJob(ctx, job.ID, msg); reqErr != nil || !ok {
			logger.Warn("requeue failed", logging.Error(reqErr))
		}
		if r.metrics != nil {
			r.metrics.JobsRequeued.WithLabelValues(string(job.Kind)).Inc()
		}
		delay := r.backoff(job.Attempts)
		logger.Warn("job failed transiently, retrying",
			logging.Duration("delay", delay), logging.Error(outcome.err))
		_ = delivery.Nack(delay)
	default:
		msg := outcome.err.Error()
		if ok, failErr := r.store.FailJob(ctx, job.ID, msg); failErr != nil {
			logger.Warn("fail transition errored", logging.Error(failErr))
		} else if !ok {
			logger.Warn("fail transition lost; job was reclaimed")
		}
		if r.metrics != nil {
			r.metrics.JobsFailed.WithLabelValues(string(job.Kind)).Inc()
		}
		logger.Error("job failed permanently", logging.Error(outcome.err))
		_ = delivery.Ack()
	}
}

type executeOutcome struct {
	err     error
	elapsed time.Duration
}

func (r *Runtime) execute(ctx context.Context, logger *slog.Logger, job *catalog.Job) executeOutcome {
	start := time.Now()
	finish := func(err error) executeOutcome {
		return executeOutcome{err: err, elapsed: time.Since(start)}
	}

	processor, ok := r.registry.Lookup(job.Kind)
	if !ok {
		return finish(services.Wrap(services.ErrValidation, "worker", "dispatch",
			"no processor registered for "+string(job.Kind), nil))
	}

	input, err := r.store.GetFile(ctx, job.FileID)
	if err != nil {
		return finish(services.Wrap(services.ErrTransient, "worker", "load input", "", err))
	}
	if input == nil || input.StorageKey == "" {
		return finish(services.Wrap(services.ErrContent, "worker", "load input",
			"input file missing or has no stored bytes", nil))
	}

	body, err := r.objects.Get(ctx, input.StorageKey)
	if err != nil {
		return finish(services.Wrap(services.ErrTransient, "worker", "open input", "", err))
	}
	defer func() { _ = body.Close() }()

	procCtx := ctx
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	result, err := processor.Process(procCtx, Request{
		Job:    job,
		Input:  input,
		Body:   body,
		Params: job.Params,
	})
	if err != nil {
		return finish(err)
	}

	outputID := ""
	if result != nil && len(result.Output) > 0 {
		key, size, putErr := r.objects.Put(ctx, bytes.NewReader(result.Output))
		if putErr != nil {
			return finish(services.Wrap(services.ErrTransient, "worker", "store output", "", putErr))
		}
		output := &catalog.File{
			OwnerID:      input.OwnerID,
			OriginalName: result.OutputName,
			SizeBytes:    size,
			ContentType:  result.ContentType,
			StorageKey:   key,
			Status:       catalog.FileReady,
			ParentFileID: input.ID,
			IsOutput:     true,
		}
		if createErr := r.store.CreateFile(ctx, output); createErr != nil {
			return finish(services.Wrap(services.ErrTransient, "worker", "record output", "", createErr))
		}
		outputID = output.ID
		logger.Info("stored output artifact",
			logging.String(logging.FieldFileID, output.ID),
			logging.Int64("size_bytes", size))
	}

	completed, err := r.store.CompleteJob(ctx, job.ID, outputID)
	if err != nil {
		return finish(services.Wrap(services.ErrTransient, "worker", "complete", "", err))
	}
	if !completed {
		// The reconciler reclaimed the job mid-flight. The redelivery will
		// redo the work; outputs are content addressed so nothing leaks.
		logger.Warn("completion lost to a reclaim")
	}
	return finish(nil)
}

func (r *Runtime) startHeartbeat(ctx context.Context, jobID string) func() {
	if r.heartbeatInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ok, err := r.store.TouchJob(ctx, jobID)
				if err != nil || !ok {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (r *Runtime) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return delay
}
