package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/pkg/activity"
	"github.com/ahrav/go-rfq/pkg/events"
)

const eventSource = "rfq-activity"

// EventEmitter handles event emission for the negotiation activities.
// It builds validated domain envelopes and hands them to the sink on a
// best-effort basis.
type EventEmitter struct {
	base activity.BaseActivities
}

// NewEventEmitter creates a new EventEmitter with the provided base activities.
func NewEventEmitter(base activity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitStep emits the event of a validation, execution or booking step.
func (e *EventEmitter) EmitStep(
	ctx context.Context,
	eventType domain.EventType,
	order domain.Order,
	result domain.StepResult,
	wfCtx activity.WorkflowContext,
) {
	e.emit(ctx, eventType, order.ID, domain.StepPayload{Order: order, Result: result}, wfCtx)
}

// EmitQuote emits QuoteCreated for a freshly priced quote.
func (e *EventEmitter) EmitQuote(
	ctx context.Context,
	order domain.Order,
	quote domain.Quote,
	wfCtx activity.WorkflowContext,
) {
	e.emit(ctx, domain.EventTypeQuoteCreated, order.ID, domain.QuotePayload{Order: order, Quote: quote}, wfCtx)
}

func (e *EventEmitter) emit(
	ctx context.Context,
	eventType domain.EventType,
	orderID string,
	payload any,
	wfCtx activity.WorkflowContext,
) {
	env, err := domain.NewOrderEvent(eventType, orderID, wfCtx.WorkflowID, wfCtx.RunID,
		payload, eventSource, e.base.Now())
	if err != nil {
		activity.SafeLogError(ctx, "Failed to build event",
			"event_type", eventType,
			"order_id", orderID,
			"error", err)
		return
	}

	e.base.EmitEventSafe(ctx, toEnvelope(env), fmt.Sprintf("%s[%s]", eventType, orderID))
}

// toEnvelope maps a domain envelope onto the transport envelope. Events are
// keyed by order id so one order's events stay ordered within a partition.
func toEnvelope(env domain.EventEnvelope) events.Envelope {
	return events.Envelope{
		ID:             uuid.NewString(),
		Type:           string(env.EventType),
		Source:         env.Producer,
		Version:        fmt.Sprintf("%d.0.0", env.Version),
		Timestamp:      env.OccurredAt,
		IdempotencyKey: env.IdempotencyKey,
		Key:            env.OrderID,
		WorkflowID:     env.WorkflowID,
		RunID:          env.RunID,
		Payload:        env.Payload,
	}
}
