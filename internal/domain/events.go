package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event emitted by the system.
// Using typed constants provides compile-time safety and enables
// exhaustive switch statements for event handling.
type EventType string

const (
	// EventTypeOrderValidated is emitted after the validation step, successful or not.
	EventTypeOrderValidated EventType = "OrderValidated"

	// EventTypeQuoteCreated is emitted once per order when its quote is priced.
	EventTypeQuoteCreated EventType = "QuoteCreated"

	// EventTypeOrderExecuted is emitted after the execution step.
	EventTypeOrderExecuted EventType = "OrderExecuted"

	// EventTypeOrderBooked is emitted after the booking step.
	EventTypeOrderBooked EventType = "OrderBooked"
)

// EventEnvelope wraps all events with consistent metadata for downstream consumers.
// Provides workflow context and idempotency so projections can deduplicate
// events re-emitted by retried activities.
type EventEnvelope struct {
	// IdempotencyKey ensures events are processed exactly once during retries.
	// Derived from the workflow id and event type, so a retried step reuses it.
	IdempotencyKey string `json:"idempotency_key" validate:"required"`

	// EventType identifies the specific type of event for routing and processing.
	EventType EventType `json:"event_type" validate:"required"`

	// Version enables event schema evolution.
	Version int `json:"version" validate:"required,min=1"`

	// OccurredAt records when the event occurred.
	OccurredAt time.Time `json:"occurred_at" validate:"required"`

	// OrderID identifies the order the event belongs to.
	OrderID string `json:"order_id" validate:"required"`

	// WorkflowID identifies the negotiation that produced this event.
	WorkflowID string `json:"workflow_id" validate:"required"`

	// RunID identifies the specific workflow execution run.
	RunID string `json:"run_id"`

	// Payload contains the event-specific data as JSON.
	Payload json.RawMessage `json:"payload" validate:"required"`

	// Producer identifies the component that emitted this event.
	Producer string `json:"producer" validate:"required"`
}

// Validate checks if the event envelope meets all requirements.
func (e *EventEnvelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}

// StepPayload is the payload of validation, execution and booking events.
type StepPayload struct {
	Order  Order      `json:"order"`
	Result StepResult `json:"result"`
}

// QuotePayload is the payload of QuoteCreated events.
type QuotePayload struct {
	Order Order `json:"order"`
	Quote Quote `json:"quote"`
}

// EventIdempotencyKey derives a deterministic key for event deduplication.
// H(workflow_id || ":" || event_type) is stable across activity retries.
func EventIdempotencyKey(workflowID string, eventType EventType) string {
	hasher := sha256.New()
	hasher.Write([]byte(workflowID + ":" + string(eventType)))
	return hex.EncodeToString(hasher.Sum(nil))
}

// NewOrderEvent creates a validated event envelope for one negotiation step.
// The payload is marshaled to JSON; occurredAt should come from the activity clock.
func NewOrderEvent(
	eventType EventType,
	orderID, workflowID, runID string,
	payload any,
	producer string,
	occurredAt time.Time,
) (EventEnvelope, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	envelope := EventEnvelope{
		IdempotencyKey: EventIdempotencyKey(workflowID, eventType),
		EventType:      eventType,
		Version:        1,
		OccurredAt:     occurredAt,
		OrderID:        orderID,
		WorkflowID:     workflowID,
		RunID:          runID,
		Payload:        payloadJSON,
		Producer:       producer,
	}

	if err := envelope.Validate(); err != nil {
		return EventEnvelope{}, fmt.Errorf("invalid event envelope: %w", err)
	}

	return envelope, nil
}
