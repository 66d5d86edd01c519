// Package worker provides initialization and setup utilities for Temporal workers.
// This package contains initialization logic that should be executed during
// worker startup, keeping activity packages focused on pure activity logic.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-rfq/internal/activity"
	"github.com/ahrav/go-rfq/internal/config"
	"github.com/ahrav/go-rfq/internal/metrics"
	"github.com/ahrav/go-rfq/internal/store"
	"github.com/ahrav/go-rfq/internal/venue"
	pkgactivity "github.com/ahrav/go-rfq/pkg/activity"
	"github.com/ahrav/go-rfq/pkg/events"
)

// Dependencies are the long-lived collaborators shared by the worker, the
// in-process host and the registry.
type Dependencies struct {
	Activities *activity.Activities
	Records    store.RecordStore
	Ledger     store.BookingLedger
	Sink       events.EventSink
	Metrics    *metrics.Collectors

	closers []func() error
}

// Close releases connections opened by Build.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates stores, the event sink, metrics and the activities from cfg.
// A nil clk uses wall time.
func Build(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
	clk clock.Clock,
) (*Dependencies, error) {
	d := &Dependencies{Metrics: metrics.New(reg)}

	if err := d.buildStores(ctx, cfg.Store); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := d.buildSink(cfg.Events, logger); err != nil {
		_ = d.Close()
		return nil, err
	}

	opts := []activity.Option{
		activity.WithBasePrice(cfg.Quote.BasePrice),
		activity.WithQuoteTTL(cfg.Quote.TTL),
		activity.WithRecorder(d.Metrics),
	}
	if cfg.Venue.Enabled {
		opts = append(opts, activity.WithVenueLimiter(
			rate.NewLimiter(rate.Limit(cfg.Venue.OrdersPerSecond), cfg.Venue.Burst)))
	}
	if b := cfg.Venue.Breaker; b.Enabled {
		opts = append(opts, activity.WithVenue(venue.NewBreaker(venue.Simulated{},
			venue.BreakerConfig{
				FailureThreshold: b.FailureThreshold,
				SuccessThreshold: b.SuccessThreshold,
				OpenTimeout:      b.OpenTimeout,
				HalfOpenProbes:   b.HalfOpenProbes,
			},
			venue.WithClock(clk),
			venue.WithLogger(logger))))
	}

	base := pkgactivity.NewBaseActivities(d.Sink, clk)
	d.Activities = activity.NewActivities(base, d.Ledger, opts...)
	return d, nil
}

func (d *Dependencies) buildStores(ctx context.Context, cfg config.StoreConfig) error {
	switch cfg.Backend {
	case config.BackendRedis:
		rc, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, rc.Close)
		opts := []store.RedisOption{store.WithPrefix(cfg.Redis.Prefix), store.WithTTL(cfg.Redis.TTL)}
		d.Records = store.NewRedisRecordStore(rc, opts...)
		d.Ledger = store.NewRedisBookingLedger(rc, opts...)
	default:
		d.Records = store.NewMemoryRecordStore()
		d.Ledger = store.NewMemoryBookingLedger()
	}
	return nil
}

func (d *Dependencies) buildSink(cfg config.EventsConfig, logger *slog.Logger) error {
	switch cfg.Sink {
	case config.SinkKafka:
		sink, err := events.NewKafkaEventSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize kafka event sink: %w", err)
		}
		d.closers = append(d.closers, sink.Close)
		d.Sink = sink
	case config.SinkLog:
		d.Sink = events.NewLogEventSink(logger)
	default:
		d.Sink = events.NewNoOpEventSink()
	}
	return nil
}

// NewTemporalClient dials the Temporal frontend, logging through logger.
func NewTemporalClient(cfg config.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}
