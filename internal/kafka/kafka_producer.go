package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/sony/gobreaker"

	"hostwatch/internal/config"
	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
	"hostwatch/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize envelope")
	ErrBreakerOpen     = errors.New("kafka circuit breaker open")
)

// Producer publishes notification envelopes to a Kafka topic. Writers are
// pooled, writes are retried with exponential backoff and a circuit breaker
// stops hammering an unreachable cluster.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []*kafka.Writer
	pool    chan *kafka.Writer
	breaker *gobreaker.CircuitBreaker
	closed  atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
	bytes  atomic.Uint64
}

// NewProducer creates a producer for topic on brokers.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: make([]*kafka.Writer, cfg.PoolSize),
		pool:    make(chan *kafka.Writer, cfg.PoolSize),
	}

	codec := compressionCodec(cfg.Compression)
	for i := range p.writers {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  codec,
			// retries are handled in write
			MaxAttempts: 1,
		}
		p.writers[i] = w
		p.pool <- w
	}

	log := logger.WithComponent("kafka_producer")
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka:" + topic,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.KafkaBreakerState.Set(float64(to))
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("kafka circuit breaker state changed")
		},
	})

	return p, nil
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func toMessage(env *models.Envelope) (kafka.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return kafka.Message{
		Key:   []byte(env.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "intent_id", Value: []byte(env.Intent.ID)},
			{Key: "channel", Value: []byte(env.Intent.Channel)},
			{Key: "kind", Value: []byte(env.Intent.Kind)},
			{Key: "test", Value: []byte(strconv.FormatBool(env.Intent.Test))},
			{Key: "host", Value: []byte(env.Host)},
		},
		Time: env.EmittedAt,
	}, nil
}

// Publish sends one envelope.
func (p *Producer) Publish(ctx context.Context, env *models.Envelope) error {
	return p.PublishBatch(ctx, []*models.Envelope{env})
}

// PublishBatch sends envelopes in a single write. Envelopes that cannot be
// serialized are logged and skipped.
func (p *Producer) PublishBatch(ctx context.Context, envs []*models.Envelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	log := logger.WithComponent("kafka_producer")

	msgs := make([]kafka.Message, 0, len(envs))
	for _, env := range envs {
		msg, err := toMessage(env)
		if err != nil {
			log.Error().Err(err).Str("intent_id", env.Intent.ID).Msg("dropping envelope")
			p.failed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	var w *kafka.Writer
	select {
	case w = <-p.pool:
		defer func() { p.pool <- w }()
	case <-ctx.Done():
		p.failed.Add(uint64(len(msgs)))
		return ctx.Err()
	}

	start := time.Now()
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.write(ctx, w, msgs)
	})
	elapsed := time.Since(start)
	metrics.KafkaPublishDuration.Observe(elapsed.Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(msgs)).Dur("duration", elapsed).Msg("kafka publish failed")
		p.failed.Add(uint64(len(msgs)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(msgs)))
		return err
	}

	var n uint64
	for _, m := range msgs {
		n += uint64(len(m.Value))
	}
	p.sent.Add(uint64(len(msgs)))
	p.bytes.Add(n)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(msgs)))
	log.Debug().Int("batch_size", len(msgs)).Dur("duration", elapsed).Msg("published to kafka")
	return nil
}

// write retries with exponential backoff. Context errors are not retried.
func (p *Producer) write(ctx context.Context, w *kafka.Writer, msgs []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	backoff := p.cfg.RetryBackoff
	attempts := p.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.KafkaPublishRetries.Inc()
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := w.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("batch_size", len(msgs)).Msg("kafka write attempt failed")
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Close closes every writer. Further publishes fail with ErrProducerClosed.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProducerStats holds producer counters.
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
	Breaker        string `json:"breaker"`
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.sent.Load(),
		MessagesFailed: p.failed.Load(),
		BytesWritten:   p.bytes.Load(),
		Breaker:        p.breaker.State().String(),
	}
}
