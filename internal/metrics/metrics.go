package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// Sampling metrics
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_readings_total",
			Help: "Total number of readings sampled",
		},
		[]string{"metric"},
	)

	SampleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_sample_errors_total",
			Help: "Total number of failed samples",
		},
		[]string{"metric"},
	)

	ReadingValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostwatch_reading_value",
			Help: "Last sampled value per channel",
		},
		[]string{"channel"},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_evaluations_total",
			Help: "Total number of channel evaluations",
		},
		[]string{"metric", "outcome"}, // outcome: ok, disabled, stale, invalid
	)

	ChannelPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostwatch_channel_phase",
			Help: "1 for the current phase of each channel, 0 otherwise",
		},
		[]string{"channel", "phase"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostwatch_sweep_duration_seconds",
			Help:    "Time taken by one sampling sweep",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_intents_total",
			Help: "Total number of notification intents emitted",
		},
		[]string{"metric", "kind"},
	)

	// Dispatch metrics
	DispatchQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_dispatch_queue_size",
			Help: "Current size of the dispatch queue",
		},
	)

	DispatchQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_dispatch_queue_capacity",
			Help: "Capacity of the dispatch queue",
		},
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_dispatch_dropped_total",
			Help: "Total number of intents dropped because the queue was full",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_worker_processed_total",
			Help: "Total number of intents delivered by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_worker_failed_total",
			Help: "Total number of intents workers failed to deliver",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostwatch_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of intents",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostwatch_kafka_breaker_state",
			Help: "Kafka circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// History metrics
	HistoryWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_history_write_errors_total",
			Help: "Total number of readings the history store failed to record",
		},
	)

	HistoryPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hostwatch_history_pruned_total",
			Help: "Total number of history points removed by retention",
		},
	)

	// Policy metrics
	PolicyUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_policy_updates_total",
			Help: "Total number of policy set updates",
		},
		[]string{"result"}, // result: applied, rejected, reset
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

// Phases lists the label values exported by ChannelPhase.
var Phases = []string{"OK", "PENDING_ALERT", "ALERTING", "PENDING_RECOVER"}

// SetPhase marks phase as current for channel.
func SetPhase(channel, phase string) {
	for _, p := range Phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		ChannelPhase.WithLabelValues(channel, p).Set(v)
	}
}

// ForgetChannel drops the per-channel series of a removed channel.
func ForgetChannel(channel string) {
	for _, p := range Phases {
		ChannelPhase.DeleteLabelValues(channel, p)
	}
	ReadingValue.DeleteLabelValues(channel)
}
