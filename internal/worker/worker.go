// Package worker delivers envelopes from a queue with a pool of batching
// workers.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/models"
)

// Publisher delivers envelopes somewhere durable or visible.
type Publisher interface {
	Publish(ctx context.Context, env *models.Envelope) error
	PublishBatch(ctx context.Context, envs []*models.Envelope) error
}

// Config holds worker pool configuration.
type Config struct {
	Publisher    Publisher
	Queue        <-chan *models.Envelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	// PublishTimeout bounds one batch publish.
	PublishTimeout time.Duration
}

// Pool drains Queue. Workers exit when the queue is closed (after delivering
// what is left) or when Stop is called.
type Pool struct {
	cfg Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{cfg: cfg, ctx: ctx, cancel: cancel}
}

func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.cfg.Workers).
		Int("batch_size", p.cfg.BatchSize).
		Dur("batch_timeout", p.cfg.BatchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Stop cancels the workers, flushing the batch each one holds, and waits.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	batch := make([]*models.Envelope, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.deliver(batch)
		batch = batch[:0]
	}

	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			flush()
			return
		case env, ok := <-p.cfg.Queue:
			if !ok {
				flush()
				return
			}
			metrics.DispatchQueueSize.Set(float64(len(p.cfg.Queue)))
			batch = append(batch, env)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// deliver publishes a batch, falling back to one publish per envelope when
// the batch fails. Stop does not abort an in-flight publish.
func (p *Pool) deliver(batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.cfg.PublishTimeout)
	err := p.cfg.Publisher.PublishBatch(ctx, batch)
	cancel()
	metrics.WorkerBatchPublishDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch publish failed, retrying individually")
	for _, env := range batch {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.cfg.PublishTimeout)
		err := p.cfg.Publisher.Publish(ctx, env)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("intent_id", env.Intent.ID).
				Str("channel", string(env.Intent.Channel)).
				Str("kind", string(env.Intent.Kind)).
				Msg("failed to deliver notification")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats holds worker pool counters.
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
