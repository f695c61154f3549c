package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"fileforge/internal/config"
)

// NATSBroker delivers envelopes through a JetStream work-queue stream.
// Each catalog queue maps to one subject; consumers are durable so
// unacknowledged deliveries survive worker restarts.
type NATSBroker struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// ConnectNATS dials the configured NATS server and ensures the job stream
// exists.
func ConnectNATS(cfg config.Broker) (*NATSBroker, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream := cfg.StreamName
	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subjectPrefix(stream) + ".>"},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream: %w", err)
		}
	}

	return &NATSBroker{
		nc:     nc,
		js:     js,
		stream: stream,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

func subjectPrefix(stream string) string {
	return strings.ToLower(stream)
}

func (b *NATSBroker) subject(queue string) string {
	return subjectPrefix(b.stream) + "." + queue
}

// Publish enqueues an envelope on the named queue.
func (b *NATSBroker) Publish(ctx context.Context, queue string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := b.js.Publish(b.subject(queue), payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

func (b *NATSBroker) subscription(queue string) (*nats.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[queue]; ok {
		return sub, nil
	}
	sub, err := b.js.PullSubscribe(b.subject(queue), "workers-"+queue,
		nats.BindStream(b.stream),
		nats.AckExplicit(),
		nats.AckWait(2*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", queue, err)
	}
	b.subs[queue] = sub
	return sub, nil
}

// Consume blocks up to wait for the next delivery on the named queue.
func (b *NATSBroker) Consume(ctx context.Context, queue string, wait time.Duration) (*Delivery, error) {
	sub, err := b.subscription(queue)
	if err != nil {
		return nil, err
	}

	msgs, err := sub.Fetch(1, nats.MaxWait(wait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch %s: %w", queue, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := msgs[0]
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		// Poison payloads are dropped; nothing downstream can act on them.
		_ = msg.Term()
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	return &Delivery{
		Envelope: env,
		ack: func() error {
			return msg.Ack()
		},
		nack: func(delay time.Duration) error {
			return msg.NakWithDelay(delay)
		},
	}, nil
}

// Close drains the connection.
func (b *NATSBroker) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
