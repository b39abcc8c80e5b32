package config

import "time"

// Config holds runtime configuration for the hostwatch service.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	History  HistoryConfig  `mapstructure:"history"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
	// TestRate is the number of manual test notifications allowed per minute.
	TestRate int `mapstructure:"test_rate"`
}

// KafkaConfig configures intent delivery. With no brokers intents are logged.
type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig tunes the Kafka writer pool.
type ProducerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// BreakerFailures consecutive failures open the circuit breaker.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// RedisConfig configures the Redis connection used by the redis policy backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PolicyConfig selects where the policy set is persisted.
type PolicyConfig struct {
	// Backend is "file" or "redis".
	Backend  string `mapstructure:"backend"`
	File     string `mapstructure:"file"`
	RedisKey string `mapstructure:"redis_key"`
}

// HistoryConfig configures the readings history used by charts.
type HistoryConfig struct {
	// Backend is "memory" or "postgres".
	Backend       string        `mapstructure:"backend"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

// MonitorConfig configures the sampling sweep.
type MonitorConfig struct {
	MountPoints []string `mapstructure:"mount_points"`
	// Concurrency bounds how many channels are evaluated in parallel.
	Concurrency int `mapstructure:"concurrency"`
}

// DispatchConfig configures the intent worker pool.
type DispatchConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodySize:  1 << 20,
			TestRate:     6,
		},
		Kafka: KafkaConfig{
			Topic: "hostwatch.alerts",
			Producer: ProducerConfig{
				PoolSize:        2,
				BatchSize:       100,
				BatchTimeout:    50 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				RequiredAcks:    -1,
				Compression:     "snappy",
				MaxRetries:      3,
				RetryBackoff:    100 * time.Millisecond,
				BreakerFailures: 5,
				BreakerTimeout:  30 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Policy: PolicyConfig{
			Backend:  "file",
			File:     "/etc/hostwatch/monitoring.yaml",
			RedisKey: "hostwatch:policy",
		},
		History: HistoryConfig{
			Backend:       "memory",
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "@hourly",
		},
		Monitor: MonitorConfig{
			MountPoints: []string{"/"},
			Concurrency: 4,
		},
		Dispatch: DispatchConfig{
			QueueSize:    1000,
			Workers:      2,
			BatchSize:    20,
			BatchTimeout: 200 * time.Millisecond,
		},
	}
}
