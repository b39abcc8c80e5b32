// Package processor wires the hostwatch service together and owns its
// lifecycle.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"hostwatch/internal/config"
	"hostwatch/internal/dispatch"
	"hostwatch/internal/handlers"
	"hostwatch/internal/kafka"
	"hostwatch/internal/logger"
	"hostwatch/internal/models"
	"hostwatch/internal/monitor"
	"hostwatch/internal/policy"
	"hostwatch/internal/sampler"
	"hostwatch/internal/state"
	"hostwatch/internal/storage"
	"hostwatch/internal/worker"
)

// Processor runs the monitor loop, the notification pipeline and the API.
type Processor struct {
	cfg    *config.Config
	source sampler.Source
	host   string

	kv         state.KV
	policies   *policy.Store
	history    storage.History
	retention  *storage.Retention
	producer   *kafka.Producer
	dispatcher *dispatch.Dispatcher
	monitor    *monitor.Monitor
	httpServer *http.Server
	listener   net.Listener

	wg sync.WaitGroup
}

// Option customizes a Processor.
type Option func(*Processor)

// WithSource replaces the host sampler.
func WithSource(s sampler.Source) Option {
	return func(p *Processor) { p.source = s }
}

func New(cfg *config.Config, opts ...Option) *Processor {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	p := &Processor{cfg: cfg, host: host}
	for _, opt := range opts {
		opt(p)
	}
	if p.source == nil {
		p.source = sampler.NewSystem()
	}
	return p
}

// Run starts everything and blocks until ctx is cancelled, then shuts down.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("host", p.host).Msg("hostwatch starting")

	if err := p.init(ctx); err != nil {
		if p.producer != nil {
			_ = p.producer.Close()
		}
		p.closeStores()
		return err
	}

	p.dispatcher.Start()
	p.retention.Start()

	monCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.listener.Addr().String()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.monitor.Run(monCtx)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return p.shutdown(stopMonitor)
}

func (p *Processor) init(ctx context.Context) error {
	mounts, err := p.mounts(ctx)
	if err != nil {
		return err
	}
	if err := p.initPolicies(ctx, mounts); err != nil {
		return fmt.Errorf("failed to initialize policies: %w", err)
	}
	if err := p.initHistory(ctx); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	if err := p.initDispatch(); err != nil {
		return fmt.Errorf("failed to initialize dispatch: %w", err)
	}

	p.monitor = monitor.New(p.source, p.policies, state.NewStore(), p.history, p.dispatcher, monitor.Options{
		Concurrency: p.cfg.Monitor.Concurrency,
	})

	if err := p.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	return nil
}

// mounts returns the configured mount points, or the host's partitions when
// none are configured.
func (p *Processor) mounts(ctx context.Context) ([]string, error) {
	mounts := models.NormalizeMounts(p.cfg.Monitor.MountPoints)
	if len(mounts) > 0 {
		return mounts, nil
	}
	sys, ok := p.source.(*sampler.System)
	if !ok {
		return nil, nil
	}
	found, err := sys.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.WithComponent("processor")
	log.Info().Strs("mounts", found).Msg("discovered mount points")
	return found, nil
}

func (p *Processor) initPolicies(ctx context.Context, mounts []string) error {
	log := logger.WithComponent("processor")

	var backend policy.Backend
	switch p.cfg.Policy.Backend {
	case "redis":
		kv, err := state.NewRedisKV(ctx, p.cfg.Redis.Addr, p.cfg.Redis.Password, p.cfg.Redis.DB)
		if err != nil {
			return err
		}
		p.kv = kv
		backend = policy.NewRedisBackend(kv, p.cfg.Policy.RedisKey)
		log.Info().Str("addr", p.cfg.Redis.Addr).Str("key", p.cfg.Policy.RedisKey).Msg("policy stored in redis")
	default:
		backend = policy.NewFileBackend(p.cfg.Policy.File)
		log.Info().Str("file", p.cfg.Policy.File).Msg("policy stored in file")
	}

	store, err := policy.NewStore(ctx, backend, mounts)
	if err != nil {
		return err
	}
	p.policies = store
	return nil
}

func (p *Processor) initHistory(ctx context.Context) error {
	switch p.cfg.History.Backend {
	case "postgres":
		pg, err := storage.NewPostgres(ctx, p.cfg.History.PostgresDSN)
		if err != nil {
			return err
		}
		p.history = pg
	default:
		p.history = storage.NewMemory()
	}

	r, err := storage.NewRetention(p.history, p.cfg.History.Retention, p.cfg.History.PruneSchedule)
	if err != nil {
		return err
	}
	p.retention = r
	log := logger.WithComponent("processor")
	log.Info().
		Str("backend", p.cfg.History.Backend).
		Dur("retention", p.cfg.History.Retention).
		Str("schedule", p.cfg.History.PruneSchedule).
		Msg("history initialized")
	return nil
}

// initDispatch publishes to Kafka when brokers are configured and to the
// log otherwise.
func (p *Processor) initDispatch() error {
	log := logger.WithComponent("processor")

	var publisher worker.Publisher
	if len(p.cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(p.cfg.Kafka.Brokers, p.cfg.Kafka.Topic, p.cfg.Kafka.Producer)
		if err != nil {
			return err
		}
		p.producer = producer
		publisher = producer
		log.Info().
			Strs("brokers", p.cfg.Kafka.Brokers).
			Str("topic", p.cfg.Kafka.Topic).
			Msg("kafka producer initialized")
	} else {
		publisher = dispatch.NewLogPublisher()
		log.Info().Msg("no kafka brokers configured, notifications go to the log")
	}

	p.dispatcher = dispatch.New(publisher, dispatch.Options{
		Host:  p.host,
		Queue: p.cfg.Dispatch.QueueSize,
		Pool: worker.Config{
			Workers:      p.cfg.Dispatch.Workers,
			BatchSize:    p.cfg.Dispatch.BatchSize,
			BatchTimeout: p.cfg.Dispatch.BatchTimeout,
		},
	})
	return nil
}

func (p *Processor) initHTTPServer() error {
	api := handlers.New(handlers.Config{
		Policies:    p.policies,
		Monitor:     p.monitor,
		History:     p.history,
		TestRate:    p.cfg.HTTP.TestRate,
		MaxBodySize: p.cfg.HTTP.MaxBodySize,
		Stats:       func() any { return p.Stats() },
	})

	ln, err := net.Listen("tcp", p.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	p.listener = ln
	p.httpServer = &http.Server{
		Handler:      api.Router(),
		ReadTimeout:  p.cfg.HTTP.ReadTimeout,
		WriteTimeout: p.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Addr is the address the API listens on, once Run has initialized.
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// shutdown stops intake first (HTTP, monitor), then drains notifications,
// then closes the stores.
func (p *Processor) shutdown(stopMonitor context.CancelFunc) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := p.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	stopMonitor()
	p.retention.Stop()

	if err := p.dispatcher.Close(ctx); err != nil {
		log.Warn().Err(err).Int("pending", p.dispatcher.Pending()).Msg("notification drain timed out")
	}
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}

	p.wg.Wait()
	p.closeStores()
	log.Info().Msg("hostwatch stopped gracefully")
	return nil
}

func (p *Processor) closeStores() {
	log := logger.WithComponent("processor")
	if p.history != nil {
		if err := p.history.Close(); err != nil {
			log.Error().Err(err).Msg("history close error")
		}
	}
	if p.kv != nil {
		if err := p.kv.Close(); err != nil {
			log.Error().Err(err).Msg("redis close error")
		}
	}
}

// Stats is the payload of GET /stats.
type Stats struct {
	Worker   worker.Stats         `json:"worker"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
	Queue    struct {
		Buffered int `json:"buffered"`
		Capacity int `json:"capacity"`
	} `json:"queue"`
	Monitor struct {
		Sweeps    uint64     `json:"sweeps"`
		LastSweep *time.Time `json:"last_sweep,omitempty"`
	} `json:"monitor"`
}

func (p *Processor) Stats() Stats {
	var s Stats
	s.Worker = p.dispatcher.Stats()
	if p.producer != nil {
		ps := p.producer.Stats()
		s.Producer = &ps
	}
	s.Queue.Buffered = p.dispatcher.Pending()
	s.Queue.Capacity = p.cfg.Dispatch.QueueSize
	d := p.monitor.Debug()
	s.Monitor.Sweeps = d.Sweeps
	s.Monitor.LastSweep = d.LastSweep
	return s
}

func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			ev := log.Info().
				Uint64("worker_processed", s.Worker.Processed).
				Uint64("worker_failed", s.Worker.Failed).
				Int("queue_size", s.Queue.Buffered).
				Uint64("sweeps", s.Monitor.Sweeps)
			if s.Producer != nil {
				ev = ev.Uint64("producer_sent", s.Producer.MessagesSent).
					Uint64("producer_failed", s.Producer.MessagesFailed).
					Str("breaker", s.Producer.Breaker)
			}
			ev.Msg("stats")
		}
	}
}
