// Package events provides the generic event infrastructure for domain event emission.
// It defines the Envelope type for wrapping domain events with consistent metadata
// and the EventSink interface for event storage/transmission.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Envelope wraps domain events with consistent metadata for reliable event processing.
// This provides a generic container that can hold any domain-specific event payload
// while maintaining standard fields for routing, idempotency, and observability.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing and processing.
	// Examples: "OrderValidated", "QuoteCreated"
	Type string `json:"type"`

	// Source identifies the component that emitted this event.
	// Examples: "activity.validate_order", "activity.book_order"
	Source string `json:"source"`

	// Version enables schema evolution and backward compatibility.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey ensures exactly-once processing during retries.
	IdempotencyKey string `json:"idempotency_key"`

	// Key partitions the event stream; all events of one order share a key.
	Key string `json:"key"`

	// WorkflowID identifies the Temporal workflow that triggered this event.
	WorkflowID string `json:"workflow_id"`

	// RunID identifies the specific workflow execution run.
	RunID string `json:"run_id"`

	// Payload contains the domain-specific event data as JSON.
	Payload json.RawMessage `json:"payload"`
}

// EventSink defines the interface for emitting events to downstream consumers.
// Implementations include a Kafka producer, a structured-log sink and a no-op
// sink for tests.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	// Callers should not fail their primary operation due to sink failures.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink is a null implementation of EventSink for testing or when events are disabled.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}

// LogEventSink writes every event as a structured log record.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates a sink that logs events through logger.
// A nil logger falls back to slog.Default().
func NewLogEventSink(logger *slog.Logger) *LogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

// Append implements EventSink.
func (l *LogEventSink) Append(ctx context.Context, envelope Envelope) error {
	l.logger.InfoContext(ctx, "event",
		"type", envelope.Type,
		"source", envelope.Source,
		"key", envelope.Key,
		"workflow_id", envelope.WorkflowID,
		"idempotency_key", envelope.IdempotencyKey,
		"payload", string(envelope.Payload))
	return nil
}
