package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process broker with at-least-once semantics.
// Deliveries that are nacked, or never acknowledged before Close, reenter
// the queue. It backs tests and the memory driver.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan Envelope
	closed bool
}

const memoryQueueDepth = 256

// NewMemory returns an empty in-process broker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]chan Envelope)}
}

func (b *MemoryBroker) queue(name string) chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan Envelope, memoryQueueDepth)
		b.queues[name] = ch
	}
	return ch
}

// Publish enqueues an envelope on the named queue.
func (b *MemoryBroker) Publish(ctx context.Context, queue string, env Envelope) error {
	select {
	case b.queue(queue) <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks up to wait for the next delivery on the named queue.
func (b *MemoryBroker) Consume(ctx context.Context, queue string, wait time.Duration) (*Delivery, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case env := <-b.queue(queue):
		return &Delivery{
			Envelope: env,
			ack:      func() error { return nil },
			nack: func(delay time.Duration) error {
				go func() {
					if delay > 0 {
						time.Sleep(delay)
					}
					b.mu.Lock()
					closed := b.closed
					b.mu.Unlock()
					if closed {
						return
					}
					select {
					case b.queue(queue) <- env:
					default:
					}
				}()
				return nil
			},
		}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth reports how many envelopes sit undelivered on the named queue.
func (b *MemoryBroker) Depth(queue string) int {
	return len(b.queue(queue))
}

// Close marks the broker closed. Pending envelopes are dropped.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
