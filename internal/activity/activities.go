// Package activity implements the four Temporal activities of the
// request-for-quote process: order validation, quote pricing, execution and
// booking. The same methods back the in-process host, which calls them
// directly with a context deadline instead of a StartToCloseTimeout.
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/store"
	"github.com/ahrav/go-rfq/internal/venue"
	"github.com/ahrav/go-rfq/pkg/activity"
)

// Registered activity names, shared by the worker and the workflow that
// dispatches by name.
const (
	ValidateOrderName = "ValidateOrder"
	CreateQuoteName   = "CreateQuote"
	ExecuteOrderName  = "ExecuteOrder"
	BookOrderName     = "BookOrder"
)

// Pricing defaults.
const (
	DefaultBasePrice = 100.0
	DefaultQuoteTTL  = 15 * time.Minute
)

// Recorder observes completed activity steps. The metrics package provides
// the Prometheus implementation.
type Recorder interface {
	ObserveActivity(name string, success bool, took time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveActivity(string, bool, time.Duration) {}

// Option configures Activities.
type Option func(*Activities)

// WithBasePrice sets the unit price used by CreateQuote.
func WithBasePrice(p float64) Option { return func(a *Activities) { a.basePrice = p } }

// WithQuoteTTL sets how long a quote stays acceptable.
func WithQuoteTTL(ttl time.Duration) Option { return func(a *Activities) { a.quoteTTL = ttl } }

// WithVenueLimiter throttles ExecuteOrder through limiter. Nil disables throttling.
func WithVenueLimiter(l *rate.Limiter) Option { return func(a *Activities) { a.throttle = l } }

// WithVenue routes executions to v instead of the simulated venue.
func WithVenue(v venue.Venue) Option {
	return func(a *Activities) {
		if v != nil {
			a.venue = v
		}
	}
}

// WithRecorder reports step outcomes and latencies to r.
func WithRecorder(r Recorder) Option {
	return func(a *Activities) {
		if r != nil {
			a.recorder = r
		}
	}
}

// Activities handles the negotiation's Temporal activities.
// It encapsulates the booking ledger, the execution venue with its throttle
// and event emission shared by all four steps.
type Activities struct {
	activity.BaseActivities
	ledger    store.BookingLedger
	venue     venue.Venue
	throttle  *rate.Limiter
	recorder  Recorder
	events    *EventEmitter
	basePrice float64
	quoteTTL  time.Duration
}

// NewActivities creates the negotiation activities. The base activities
// provide event emission, logging and the clock; the ledger records bookings.
func NewActivities(base activity.BaseActivities, ledger store.BookingLedger, opts ...Option) *Activities {
	a := &Activities{
		BaseActivities: base,
		ledger:         ledger,
		venue:          venue.Simulated{},
		recorder:       noopRecorder{},
		events:         NewEventEmitter(base),
		basePrice:      DefaultBasePrice,
		quoteTTL:       DefaultQuoteTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ValidateOrder checks the order's business rules. A rule violation is
// reported as an unsuccessful StepResult, not as an error, so the workflow
// terminates with a validation failure instead of retrying.
func (a *Activities) ValidateOrder(ctx context.Context, order domain.Order) (domain.StepResult, error) {
	start := a.Now()
	wfCtx := a.GetWorkflowContext(ctx)
	activity.SafeLog(ctx, "Validating order",
		"order_id", order.ID,
		"workflow_id", wfCtx.WorkflowID,
		"attempt", wfCtx.Attempt)

	result := domain.Succeeded("Order %s validated", order.ID)
	if err := order.Validate(); err != nil {
		result = domain.Failed("%s", strings.Join(domain.ValidationReasons(err), "; "))
	}

	a.events.EmitStep(ctx, domain.EventTypeOrderValidated, order, result, wfCtx)
	a.recorder.ObserveActivity(ValidateOrderName, result.Success, a.Now().Sub(start))
	return result, nil
}

// CreateQuote prices the order at basePrice × quantity and stamps it with the
// activity clock. The quote expires quoteTTL after creation.
func (a *Activities) CreateQuote(ctx context.Context, order domain.Order) (domain.Quote, error) {
	if order.ID == "" {
		return domain.Quote{}, nonRetryable(errTypeInvalidInput, ErrActivityValidation, "order id is required")
	}

	start := a.Now()
	wfCtx := a.GetWorkflowContext(ctx)

	now := a.Now()
	quote := domain.Quote{
		OrderID:   order.ID,
		Price:     a.basePrice * float64(order.Quantity),
		QuotedAt:  now,
		ExpiresAt: now.Add(a.quoteTTL),
	}
	if err := quote.Validate(); err != nil {
		return domain.Quote{}, nonRetryable(errTypeInvalidInput, err, "invalid quote")
	}

	activity.SafeLog(ctx, "Quote created",
		"order_id", order.ID,
		"price", quote.Price,
		"expires_at", quote.ExpiresAt)

	a.events.EmitQuote(ctx, order, quote, wfCtx)
	a.recorder.ObserveActivity(CreateQuoteName, true, a.Now().Sub(start))
	return quote, nil
}

// ExecuteOrder sends the order to the venue at the quoted price. When a venue
// limiter is configured the call first waits for admission within the
// activity deadline. Venue errors are retryable.
func (a *Activities) ExecuteOrder(ctx context.Context, order domain.Order, quote domain.Quote) (domain.StepResult, error) {
	if order.ID == "" {
		return domain.StepResult{}, nonRetryable(errTypeInvalidInput, ErrActivityValidation, "order id is required")
	}

	start := a.Now()
	wfCtx := a.GetWorkflowContext(ctx)

	if quote.OrderID != order.ID {
		result := domain.Failed("quote %s does not match order %s", quote.OrderID, order.ID)
		activity.SafeLogError(ctx, "Refusing to execute order",
			"order_id", order.ID,
			"quote_order_id", quote.OrderID,
			"error", ErrQuoteMismatch)
		a.events.EmitStep(ctx, domain.EventTypeOrderExecuted, order, result, wfCtx)
		a.recorder.ObserveActivity(ExecuteOrderName, false, a.Now().Sub(start))
		return result, nil
	}

	if a.throttle != nil {
		a.RecordHeartbeat(ctx, "awaiting venue")
		if err := a.throttle.Wait(ctx); err != nil {
			return domain.StepResult{}, retryable(errTypeVenue,
				fmt.Errorf("%w: %w", ErrVenueUnavailable, err), "venue throttle wait failed")
		}
	}

	fill, err := a.venue.Execute(ctx, order, quote)
	if err != nil {
		activity.SafeLogError(ctx, "Venue execution failed",
			"order_id", order.ID,
			"attempt", wfCtx.Attempt,
			"error", err)
		a.recorder.ObserveActivity(ExecuteOrderName, false, a.Now().Sub(start))
		return domain.StepResult{}, retryable(errTypeVenue,
			fmt.Errorf("%w: %w", ErrVenueUnavailable, err), "venue execution failed")
	}

	result := domain.Succeeded("Order %s executed at %s", order.ID, formatPrice(fill.Price))
	activity.SafeLog(ctx, "Order executed",
		"order_id", order.ID,
		"price", fill.Price)

	a.events.EmitStep(ctx, domain.EventTypeOrderExecuted, order, result, wfCtx)
	a.recorder.ObserveActivity(ExecuteOrderName, true, a.Now().Sub(start))
	return result, nil
}

// BookOrder records the order in the booking ledger. The ledger write is
// idempotent per workflow run, so a retried attempt reports the original
// booking while a later run of the same order id books afresh.
func (a *Activities) BookOrder(ctx context.Context, order domain.Order) (domain.StepResult, error) {
	if order.ID == "" {
		return domain.StepResult{}, nonRetryable(errTypeInvalidInput, ErrActivityValidation, "order id is required")
	}

	start := a.Now()
	wfCtx := a.GetWorkflowContext(ctx)

	booking := store.Booking{
		OrderID:   order.ID,
		RunID:     wfCtx.RunID,
		BookingID: order.ID,
		Client:    order.Client,
		Quantity:  order.Quantity,
		BookedAt:  a.Now(),
	}
	stored, created, err := a.ledger.Book(ctx, booking)
	if err != nil {
		return domain.StepResult{}, retryable(errTypeLedger,
			fmt.Errorf("%w: %w", ErrLedgerUnavailable, err), "booking ledger write failed")
	}
	if !created {
		activity.SafeLog(ctx, "Order already booked",
			"order_id", order.ID,
			"booked_at", stored.BookedAt,
			"attempt", wfCtx.Attempt)
	}

	result := domain.Succeeded("Order booked with ID %s", stored.BookingID)
	a.events.EmitStep(ctx, domain.EventTypeOrderBooked, order, result, wfCtx)
	a.recorder.ObserveActivity(BookOrderName, true, a.Now().Sub(start))
	return result, nil
}

// formatPrice renders a price in its shortest form with at least one
// fractional digit: 1000 → "1000.0", 12.5 → "12.5".
func formatPrice(p float64) string {
	s := fmt.Sprintf("%g", p)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
