// Package broker routes job envelopes between the orchestrator and the
// typed worker pools. Two drivers exist: a JetStream-backed driver for
// deployments and an in-process driver for tests and single-binary runs.
package broker

import (
	"context"
	"time"
)

// Envelope is the wire payload for one job delivery. Workers treat it as a
// hint and reload authoritative state from the catalog before acting.
type Envelope struct {
	JobID      string `json:"job_id"`
	PipelineID string `json:"pipeline_id"`
	FileID     string `json:"file_id"`
	Kind       string `json:"kind"`
	Queue      string `json:"queue"`
	Attempt    int    `json:"attempt"`
}

// Delivery is one received envelope plus its acknowledgement handle.
type Delivery struct {
	Envelope Envelope

	ack  func() error
	nack func(delay time.Duration) error
}

// Ack marks the delivery as handled so it is never redelivered.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack schedules redelivery after the given delay.
func (d *Delivery) Nack(delay time.Duration) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(delay)
}

// Broker publishes envelopes to named queues and hands them to consumers
// with at-least-once semantics.
type Broker interface {
	// Publish enqueues an envelope on the named queue.
	Publish(ctx context.Context, queue string, env Envelope) error

	// Consume blocks up to wait for the next delivery on the named queue.
	// It returns nil when nothing arrived in time.
	Consume(ctx context.Context, queue string, wait time.Duration) (*Delivery, error)

	// Close releases broker resources.
	Close() error
}
