// Package dispatch hands notification intents to the delivery workers without
// ever blocking the caller.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"hostwatch/internal/alerts"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/models"
	"hostwatch/internal/worker"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// Options configures a Dispatcher.
type Options struct {
	Host  string
	Pool  worker.Config
	Queue int
}

// Dispatcher queues intents for a worker.Pool.
type Dispatcher struct {
	host  string
	queue chan *models.Envelope
	pool  *worker.Pool

	mu     sync.RWMutex
	closed bool
}

// New creates a Dispatcher delivering through publisher. Call Start before
// emitting.
func New(publisher worker.Publisher, opts Options) *Dispatcher {
	if opts.Queue <= 0 {
		opts.Queue = 1000
	}
	q := make(chan *models.Envelope, opts.Queue)
	pc := opts.Pool
	pc.Publisher = publisher
	pc.Queue = q

	metrics.DispatchQueueCapacity.Set(float64(opts.Queue))
	return &Dispatcher{
		host:  opts.Host,
		queue: q,
		pool:  worker.NewPool(pc),
	}
}

func (d *Dispatcher) Start() { d.pool.Start() }

// Emit enqueues in. It never blocks: a full queue drops the intent and returns
// ErrQueueFull.
func (d *Dispatcher) Emit(in alerts.Intent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- models.NewEnvelope(in, d.host):
		metrics.DispatchQueueSize.Set(float64(len(d.queue)))
		metrics.IntentsTotal.WithLabelValues(string(in.Channel.Metric()), string(in.Kind)).Inc()
		return nil
	default:
		metrics.DispatchDropped.Inc()
		log := logger.WithChannel("dispatch", string(in.Channel))
		log.Warn().
			Str("kind", string(in.Kind)).
			Str("intent_id", in.ID).
			Msg("dispatch queue full, dropping notification")
		return ErrQueueFull
	}
}

// Close stops accepting intents and waits for queued ones to be delivered.
// If ctx expires first the workers are stopped and undelivered intents are
// dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.pool.Stop()
		return ctx.Err()
	}
}

// Pending is the number of queued intents.
func (d *Dispatcher) Pending() int { return len(d.queue) }

func (d *Dispatcher) Stats() worker.Stats { return d.pool.Stats() }
