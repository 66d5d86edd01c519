// Package activity provides common infrastructure for all Temporal activity implementations.
// It includes base types, context extraction, safe logging, and event emission utilities
// that are shared across activity packages.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-rfq/pkg/events"
)

// WorkflowContext contains metadata extracted from the Temporal activity context.
// Outside a Temporal activity (in-process host, tests) it carries the
// fallback values set on the context with WithWorkflowContext.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

type workflowContextKey struct{}

// WithWorkflowContext attaches workflow metadata to ctx for activities invoked
// outside a Temporal worker.
func WithWorkflowContext(ctx context.Context, wfCtx WorkflowContext) context.Context {
	return context.WithValue(ctx, workflowContextKey{}, wfCtx)
}

// BaseActivities provides common infrastructure for all activity types.
// It handles event emission, context extraction, time and safe logging in a way
// that works both in Temporal activity contexts and in-process.
type BaseActivities struct {
	eventSink events.EventSink
	clock     clock.Clock
}

// NewBaseActivities creates a new BaseActivities instance.
// The event sink can be nil when event emission is not needed; a nil clock uses wall time.
func NewBaseActivities(sink events.EventSink, clk clock.Clock) BaseActivities {
	if clk == nil {
		clk = clock.New()
	}
	return BaseActivities{eventSink: sink, clock: clk}
}

// Now returns the activity clock's current time.
func (b *BaseActivities) Now() time.Time {
	if b.clock == nil {
		return time.Now()
	}
	return b.clock.Now()
}

// GetWorkflowContext safely extracts workflow context from the activity context.
// In a Temporal activity context, it returns the actual workflow execution details.
// Otherwise it returns whatever WithWorkflowContext stored, or "local" placeholders.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		return WorkflowContext{
			WorkflowID: info.WorkflowExecution.ID,
			RunID:      info.WorkflowExecution.RunID,
			ActivityID: info.ActivityID,
			Attempt:    info.Attempt,
		}
	}
	if wfCtx, ok := ctx.Value(workflowContextKey{}).(WorkflowContext); ok {
		return wfCtx
	}
	return WorkflowContext{WorkflowID: "local", RunID: "local", ActivityID: "local", Attempt: 1}
}

// EmitEventSafe provides best-effort event emission with a short retry.
// Events feed downstream projections, but their emission must not fail the
// step that produced them.
func (b *BaseActivities) EmitEventSafe(
	ctx context.Context,
	envelope events.Envelope,
	description string,
) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, fmt.Sprintf("Event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, fmt.Sprintf("Event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, fmt.Sprintf("Failed to emit %s after %d attempts", description, maxAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat safely records a heartbeat in the Temporal activity context.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs through the Temporal activity logger when running inside an
// activity and through slog.Default() elsewhere.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	if !activity.IsActivity(ctx) {
		slog.Default().InfoContext(ctx, msg, keyvals...)
		return
	}
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at ERROR level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	if !activity.IsActivity(ctx) {
		slog.Default().ErrorContext(ctx, msg, keyvals...)
		return
	}
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records activity heartbeat details; ignored outside activities.
func RecordHeartbeat(ctx context.Context, details ...any) {
	if !activity.IsActivity(ctx) {
		return
	}
	activity.RecordHeartbeat(ctx, details...)
}
