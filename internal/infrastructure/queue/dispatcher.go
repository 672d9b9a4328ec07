package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iam-platform/iam-service/internal/core/ports"
	"github.com/iam-platform/iam-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	publishTimeout = 5 * time.Second
)

// ErrBufferFull is returned by Publish when the target worker has no room left.
var ErrBufferFull = errors.New("event dispatcher buffer full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event dispatcher closed")

type event struct {
	queue   string
	message string
}

// Dispatcher is an asynchronous ports.EventPublisher. Events are sharded over
// a fixed set of workers by hashing queue and payload, and each worker hands
// its events to the underlying publisher in arrival order.
type Dispatcher struct {
	workers []chan event
	next    ports.EventPublisher
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers in front
// of next. If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, next ports.EventPublisher, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan event, numWorkers),
		next:    next,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan event, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers keep draining until Close;
// ctx only carries values into the publish calls, its cancellation does not
// abort pending events.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(base, i, ch)
	}
}

// Publish enqueues the event and returns immediately. A full worker buffer
// drops the event rather than blocking the request.
func (d *Dispatcher) Publish(_ context.Context, queue, message string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	idx := d.shardIndex(queue, message)
	depth := metrics.EventsQueueDepth.WithLabelValues(strconv.Itoa(idx))
	// Count before the send so the worker's Dec never runs first.
	depth.Inc()
	select {
	case d.workers[idx] <- event{queue: queue, message: message}:
		return nil
	default:
		depth.Dec()
		metrics.EventsPublishedTotal.WithLabelValues(queue, "dropped").Inc()
		d.log.Warn().Str("queue", queue).Int("worker_id", idx).Msg("event dropped, dispatcher buffer full")
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for the workers to drain what is
// already queued, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps an event deterministically to a worker index.
func (d *Dispatcher) shardIndex(queue, message string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(queue))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(message))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan event) {
	defer d.wg.Done()

	depth := metrics.EventsQueueDepth.WithLabelValues(strconv.Itoa(id))
	for ev := range ch {
		depth.Dec()

		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := d.next.Publish(pctx, ev.queue, ev.message)
		cancel()

		if err != nil {
			d.log.Error().Err(err).
				Str("queue", ev.queue).
				Int("worker_id", id).
				Msg("event publish failed")
		}
	}
}
