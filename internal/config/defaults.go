package config

import "time"

// Backend and sink names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	SinkNone  = "none"
	SinkLog   = "log"
	SinkKafka = "kafka"
)

// Temporal defaults.
const (
	DefaultTemporalHostPort = "localhost:7233"
	DefaultNamespace        = "default"
	DefaultTaskQueue        = "rfq-negotiation"
)

// Pricing and throttle defaults.
const (
	DefaultBasePrice       = 100.0
	DefaultQuoteTTL        = 15 * time.Minute
	DefaultOrdersPerSecond = 5
	DefaultVenueBurst      = 10
)

// Venue circuit breaker defaults.
const (
	DefaultBreakerFailures  = 5
	DefaultBreakerSuccesses = 2
	DefaultBreakerOpen      = 30 * time.Second
	DefaultBreakerProbes    = 1
)

// Storage and observability defaults.
const (
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "rfq:"
	DefaultKafkaTopic  = "rfq-events"
	DefaultMetricsAddr = ":9090"
)

// DefaultConfig returns a configuration that runs against a local Temporal
// dev server with in-memory storage and events logged to the process log.
func DefaultConfig() *Config {
	return &Config{
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultNamespace,
			TaskQueue: DefaultTaskQueue,
		},
		Quote: QuoteConfig{
			BasePrice: DefaultBasePrice,
			TTL:       DefaultQuoteTTL,
		},
		Venue: VenueConfig{
			Enabled:         false,
			OrdersPerSecond: DefaultOrdersPerSecond,
			Burst:           DefaultVenueBurst,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: DefaultBreakerFailures,
				SuccessThreshold: DefaultBreakerSuccesses,
				OpenTimeout:      DefaultBreakerOpen,
				HalfOpenProbes:   DefaultBreakerProbes,
			},
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:   DefaultRedisAddr,
				Prefix: DefaultRedisPrefix,
			},
		},
		Events: EventsConfig{
			Sink: SinkLog,
			Kafka: KafkaConfig{
				Topic: DefaultKafkaTopic,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
	}
}
