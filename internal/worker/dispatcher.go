package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/logging"
)

// Dispatcher advances pipelines: when a job succeeds it activates the next
// pending job and publishes its delivery envelope. Activation is a
// conditional transition, so concurrent dispatchers (worker completion and
// the reconciler) cannot double-publish an activation.
type Dispatcher struct {
	store  *catalog.Store
	bus    broker.Broker
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(store *catalog.Store, bus broker.Broker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{store: store, bus: bus, logger: logger}
}

// Publish sends the delivery envelope for a queued job.
func (d *Dispatcher) Publish(ctx context.Context, job *catalog.Job) error {
	queue := job.Kind.Family().QueueName()
	env := broker.Envelope{
		JobID:      job.ID,
		PipelineID: job.PipelineID,
		FileID:     job.FileID,
		Kind:       string(job.Kind),
		Queue:      queue,
		Attempt:    job.Attempts,
	}
	if err := d.bus.Publish(ctx, queue, env); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	d.logger.Debug("published job envelope",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldKind, string(job.Kind)),
		logging.String(logging.FieldQueue, queue))
	return nil
}

// Activate moves a pending job to queued and publishes it. A lost
// activation race is reported as ok == false with no error.
func (d *Dispatcher) Activate(ctx context.Context, job *catalog.Job) (bool, error) {
	ok, err := d.store.ActivateJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := d.bus.Publish(ctx, job.Kind.Family().QueueName(), broker.Envelope{
		JobID:      job.ID,
		PipelineID: job.PipelineID,
		FileID:     job.FileID,
		Kind:       string(job.Kind),
		Queue:      job.Kind.Family().QueueName(),
		Attempt:    job.Attempts,
	}); err != nil {
		// The job stays queued; the reconciler republishes it after the
		// grace period.
		d.logger.Warn("activation publish failed, leaving job queued",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return true, nil
	}
	return true, nil
}

// Advance activates the next runnable job of a pipeline, if any. It is
// safe to call after every job completion and from the reconciler.
func (d *Dispatcher) Advance(ctx context.Context, pipelineID string) error {
	jobs, err := d.store.JobsForPipeline(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("advance pipeline %s: %w", pipelineID, err)
	}
	for _, job := range jobs {
		switch job.Status {
		case catalog.JobSucceeded:
			continue
		case catalog.JobPending:
			won, actErr := d.Activate(ctx, job)
			if actErr != nil {
				return fmt.Errorf("advance pipeline %s: %w", pipelineID, actErr)
			}
			if won {
				d.logger.Info("activated next pipeline step",
					logging.String(logging.FieldPipelineID, pipelineID),
					logging.String(logging.FieldJobID, job.ID),
					logging.Int("position", job.Position))
			}
			return nil
		default:
			// Queued, running, or failed: nothing to activate. A failed
			// job short-circuits the remainder of the pipeline.
			return nil
		}
	}
	return nil
}
