// Package config loads process configuration for the rfq binary.
//
// Values come from three layers, later layers winning: DefaultConfig, an
// optional YAML file, and RFQ_* environment variables. The CLI loads a .env
// file into the environment before any of this runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates the merged configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the configuration for every rfq subcommand.
type Config struct {
	// Temporal connection and task queue
	Temporal TemporalConfig `yaml:"temporal" json:"temporal"`

	// Quote pricing
	Quote QuoteConfig `yaml:"quote" json:"quote"`

	// Execution venue throttle
	Venue VenueConfig `yaml:"venue" json:"venue"`

	// Registry records and booking ledger
	Store StoreConfig `yaml:"store" json:"store"`

	// Domain event sink
	Events EventsConfig `yaml:"events" json:"events"`

	// Process logging
	Log LogConfig `yaml:"log" json:"log"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// TemporalConfig locates the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" json:"host_port" validate:"required"`
	Namespace string `yaml:"namespace" json:"namespace" validate:"required"`
	TaskQueue string `yaml:"task_queue" json:"task_queue" validate:"required"`
}

// QuoteConfig controls how CreateQuote prices orders.
type QuoteConfig struct {
	BasePrice float64       `yaml:"base_price" json:"base_price" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" validate:"gt=0"`
}

// VenueConfig throttles ExecuteOrder with a token bucket and guards the
// venue with a circuit breaker.
type VenueConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	OrdersPerSecond float64       `yaml:"orders_per_second" json:"orders_per_second" validate:"gte=0"`
	Burst           int           `yaml:"burst" json:"burst" validate:"gte=0"`
	Breaker         BreakerConfig `yaml:"breaker" json:"breaker"`
}

// BreakerConfig tunes the venue circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold" validate:"gte=0"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout" validate:"gte=0"`
	HalfOpenProbes   int           `yaml:"half_open_probes" json:"half_open_probes" validate:"gte=0"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" json:"backend" validate:"required,oneof=memory redis"`
	Redis   RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"-"` // Sensitive
	DB       int           `yaml:"db" json:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" validate:"gte=0"`
}

// EventsConfig selects where domain events go.
type EventsConfig struct {
	Sink  string      `yaml:"sink" json:"sink" validate:"required,oneof=none log kafka"`
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
}

// KafkaConfig holds the Kafka producer settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"required,oneof=json text"`
}

// MetricsConfig controls the Prometheus endpoint served by the worker.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Store.Backend == BackendRedis && c.Store.Redis.Addr == "" {
		return fmt.Errorf("%w: store.redis.addr is required for the redis backend", ErrInvalidConfig)
	}
	if c.Events.Sink == SinkKafka && (len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "") {
		return fmt.Errorf("%w: events.kafka.brokers and events.kafka.topic are required for the kafka sink", ErrInvalidConfig)
	}
	if c.Venue.Enabled && (c.Venue.OrdersPerSecond <= 0 || c.Venue.Burst <= 0) {
		return fmt.Errorf("%w: venue throttle needs positive orders_per_second and burst", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalidConfig)
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with an injectable environment lookup.
func LoadWithLookup(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with RFQ_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parsed := func(key string, parse func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if err := parse(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	str("RFQ_TEMPORAL_HOST_PORT", &cfg.Temporal.HostPort)
	str("RFQ_TEMPORAL_NAMESPACE", &cfg.Temporal.Namespace)
	str("RFQ_TASK_QUEUE", &cfg.Temporal.TaskQueue)

	parsed("RFQ_BASE_PRICE", func(v string) (err error) {
		cfg.Quote.BasePrice, err = strconv.ParseFloat(v, 64)
		return err
	})
	parsed("RFQ_QUOTE_TTL", func(v string) (err error) {
		cfg.Quote.TTL, err = time.ParseDuration(v)
		return err
	})

	parsed("RFQ_VENUE_RATE", func(v string) (err error) {
		cfg.Venue.OrdersPerSecond, err = strconv.ParseFloat(v, 64)
		cfg.Venue.Enabled = err == nil && cfg.Venue.OrdersPerSecond > 0
		return err
	})
	parsed("RFQ_VENUE_BREAKER", func(v string) (err error) {
		cfg.Venue.Breaker.Enabled, err = strconv.ParseBool(v)
		return err
	})

	str("RFQ_STORE_BACKEND", &cfg.Store.Backend)
	str("RFQ_REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("RFQ_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	parsed("RFQ_REDIS_DB", func(v string) (err error) {
		cfg.Store.Redis.DB, err = strconv.Atoi(v)
		return err
	})

	str("RFQ_EVENT_SINK", &cfg.Events.Sink)
	parsed("RFQ_KAFKA_BROKERS", func(v string) error {
		cfg.Events.Kafka.Brokers = splitList(v)
		return nil
	})
	str("RFQ_KAFKA_TOPIC", &cfg.Events.Kafka.Topic)

	str("RFQ_LOG_LEVEL", &cfg.Log.Level)
	str("RFQ_LOG_FORMAT", &cfg.Log.Format)

	str("RFQ_METRICS_ADDR", &cfg.Metrics.Addr)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
