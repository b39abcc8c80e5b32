package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HOSTWATCH_KAFKA_TOPIC.
const EnvPrefix = "HOSTWATCH"

// Load reads configuration from path (optional) and the environment on top of
// Default(). A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so CLI flags bound to
// it take precedence.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hostwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hostwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Policy.Backend {
	case "file":
		if c.Policy.File == "" {
			return errors.New("policy.file is required for the file backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis policy backend")
		}
	default:
		return fmt.Errorf("unknown policy backend %q", c.Policy.Backend)
	}

	switch c.History.Backend {
	case "memory":
	case "postgres":
		if c.History.PostgresDSN == "" {
			return errors.New("history.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.max_body_size", d.HTTP.MaxBodySize)
	v.SetDefault("http.test_rate", d.HTTP.TestRate)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.producer.pool_size", d.Kafka.Producer.PoolSize)
	v.SetDefault("kafka.producer.batch_size", d.Kafka.Producer.BatchSize)
	v.SetDefault("kafka.producer.batch_timeout", d.Kafka.Producer.BatchTimeout)
	v.SetDefault("kafka.producer.write_timeout", d.Kafka.Producer.WriteTimeout)
	v.SetDefault("kafka.producer.required_acks", d.Kafka.Producer.RequiredAcks)
	v.SetDefault("kafka.producer.compression", d.Kafka.Producer.Compression)
	v.SetDefault("kafka.producer.max_retries", d.Kafka.Producer.MaxRetries)
	v.SetDefault("kafka.producer.retry_backoff", d.Kafka.Producer.RetryBackoff)
	v.SetDefault("kafka.producer.breaker_failures", d.Kafka.Producer.BreakerFailures)
	v.SetDefault("kafka.producer.breaker_timeout", d.Kafka.Producer.BreakerTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("policy.backend", d.Policy.Backend)
	v.SetDefault("policy.file", d.Policy.File)
	v.SetDefault("policy.redis_key", d.Policy.RedisKey)

	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.postgres_dsn", d.History.PostgresDSN)
	v.SetDefault("history.retention", d.History.Retention)
	v.SetDefault("history.prune_schedule", d.History.PruneSchedule)

	v.SetDefault("monitor.mount_points", d.Monitor.MountPoints)
	v.SetDefault("monitor.concurrency", d.Monitor.Concurrency)

	v.SetDefault("dispatch.queue_size", d.Dispatch.QueueSize)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.batch_size", d.Dispatch.BatchSize)
	v.SetDefault("dispatch.batch_timeout", d.Dispatch.BatchTimeout)
}
