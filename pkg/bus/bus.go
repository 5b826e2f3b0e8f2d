// Package bus publishes and consumes JSON events over NATS JetStream.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultRedeliveryDelay is how long a failed message waits before redelivery.
const DefaultRedeliveryDelay = 5 * time.Second

// Options tune the connection. The zero value is usable.
type Options struct {
	// Name identifies the client in NATS monitoring.
	Name   string
	Logger *log.Logger
	// RedeliveryDelay applies to messages whose handler returned an error.
	RedeliveryDelay time.Duration
}

// Bus is a JetStream connection that speaks JSON payloads.
type Bus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *log.Logger
	delay  time.Duration
}

// New connects to url and opens a JetStream context.
func New(url string, opts Options) (*Bus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	delay := opts.RedeliveryDelay
	if delay <= 0 {
		delay = DefaultRedeliveryDelay
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("WARN nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Printf("INFO nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Bus{conn: nc, js: js, logger: logger, delay: delay}, nil
}

// EnsureStream creates the named stream over subjects if it does not exist.
func (b *Bus) EnsureStream(name string, subjects ...string) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if _, err := b.js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := b.js.AddStream(&nats.StreamConfig{Name: name, Subjects: subjects}); err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	b.logger.Printf("INFO created stream %s", name)
	return nil
}

// Connected reports whether the connection is currently up.
func (b *Bus) Connected() bool {
	return b != nil && b.conn.IsConnected()
}

// Close drains the connection, falling back to a hard close.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish JSON-encodes v onto subj and waits for the stream ack.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subj, err)
	}
	if _, err := b.js.Publish(subj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}

type subscription struct {
	once sync.Once
	sub  *nats.Subscription
	err  error
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.err = s.sub.Drain() })
	return s.err
}

// Subscribe binds a durable consumer to subj. Messages are acked when fn
// succeeds and redelivered after the configured delay otherwise. The
// subscription drains when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	sub, err := b.js.Subscribe(subj, func(msg *nats.Msg) {
		if err := fn(ctx, msg.Data); err != nil {
			b.logger.Printf("WARN %s handler: %v", subj, err)
			_ = msg.NakWithDelay(b.delay)
			return
		}
		_ = msg.Ack()
	}, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subj, err)
	}

	s := &subscription{sub: sub}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}
