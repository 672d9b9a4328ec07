// Package rabbitmq publishes text events to durable RabbitMQ queues.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

var errConnectionClosed = errors.New("rabbitmq: connection closed")

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	IsClosed() bool
	Close() error
}

type dialFunc func(url string, timeout time.Duration) (connection, error)

// amqpConnection adapts *amqp.Connection to connection.
type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string, timeout time.Duration) (connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Publisher keeps one broker connection, redialling when it drops, and opens a
// short-lived channel per message. It is safe for concurrent use.
//
// At most one dial runs at a time. Callers waiting on it give up when their
// own context ends, so a dead broker never holds a request past its deadline.
type Publisher struct {
	url  string
	dial dialFunc
	log  zerolog.Logger

	mu      sync.Mutex
	conn    connection
	closed  bool
	dialing chan struct{} // non-nil while a dial is in flight
	dialErr error         // outcome of the last finished dial
}

// Connect dials the broker once so a bad URL fails at startup.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*Publisher, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	p := newPublisher(url, dialAMQP, log)
	if _, err := p.connection(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(url string, dial dialFunc, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, dial: dial, log: log}
}

// Publish declares queue as durable and sends message to it through the
// default exchange as a persistent text/plain delivery.
func (p *Publisher) Publish(ctx context.Context, queue, message string) error {
	if err := p.publish(ctx, queue, message); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(queue, "error").Inc()
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(queue, "ok").Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, queue, message string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         []byte(message),
	})
}

// connection returns the live connection, starting a dial if none is open and
// none is in flight, then waiting for that dial or for ctx to end.
func (p *Publisher) connection(ctx context.Context) (connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errConnectionClosed
	}
	if p.conn != nil && !p.conn.IsClosed() {
		conn := p.conn
		p.mu.Unlock()
		return conn, nil
	}
	if p.dialing == nil {
		if p.conn != nil {
			p.log.Warn().Msg("rabbitmq connection lost, redialling")
		}
		p.dialing = make(chan struct{})
		go p.redial(p.dialing, dialTimeout(ctx))
	}
	done := p.dialing
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("rabbitmq dial: %w", ctx.Err())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	return nil, errConnectionClosed
}

func (p *Publisher) redial(done chan struct{}, timeout time.Duration) {
	conn, err := p.dial(p.url, timeout)

	p.mu.Lock()
	switch {
	case err != nil:
		p.dialErr = fmt.Errorf("rabbitmq dial: %w", err)
	case p.closed:
		_ = conn.Close()
	default:
		p.conn, p.dialErr = conn, nil
	}
	p.dialing = nil
	p.mu.Unlock()

	close(done)
}

// Ping reports whether the broker is reachable, redialling a dropped
// connection within ctx.
func (p *Publisher) Ping(ctx context.Context) error {
	_, err := p.connection(ctx)
	return err
}

// Close shuts the connection down. Later calls to Publish and Ping fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

// dialTimeout is what remains of ctx's deadline, or defaultTimeout.
func dialTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return defaultTimeout
}
