// Package negotiation implements the order negotiation state machine: the
// logic that takes one order from submission to a terminal outcome through
// validate → quote → await decision or expiry → execute → book.
//
// The state machine is host-agnostic. It drives activities and waits through a
// Scheduler, so the same code runs inside a Temporal workflow (see
// internal/workflow) and inside the single-node host in internal/inproc, and
// is unit-testable with a scripted scheduler and a virtual clock.
package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-rfq/internal/domain"
)

// Negotiation errors.
var (
	// ErrDuplicateOrder is returned when a negotiation for the order id is already active.
	ErrDuplicateOrder = errors.New("negotiation already active for order")

	// ErrUnknownNegotiation is returned when a host has no negotiation for the requested id.
	ErrUnknownNegotiation = errors.New("unknown negotiation")

	// ErrOutcomeTimeout is returned when a negotiation did not finish within the caller's timeout.
	ErrOutcomeTimeout = errors.New("timed out waiting for negotiation outcome")

	// ErrAwaitAnomaly indicates the decision wait returned with no decision and an unexpired
	// quote more often than the scheduler can explain. The negotiation still terminates.
	ErrAwaitAnomaly = errors.New("decision wait ended without decision or expiry")

	// ErrAlreadyRunning is returned when Run is invoked twice on one negotiation.
	ErrAlreadyRunning = errors.New("negotiation already running")
)

// Activities is the set of remote steps a negotiation drives. Each call is the
// only point where external state changes. Implementations apply their own
// per-call timeout and return an error when the step could not be completed;
// a StepResult with Success=false is a business failure and is final.
type Activities interface {
	ValidateOrder(order domain.Order) (domain.StepResult, error)
	CreateQuote(order domain.Order) (domain.Quote, error)
	ExecuteOrder(order domain.Order, quote domain.Quote) (domain.StepResult, error)
	BookOrder(order domain.Order) (domain.StepResult, error)
}

// Scheduler is the capability a negotiation runs on: a clock, a bounded
// conditional wait and activity dispatch.
type Scheduler interface {
	Activities

	// Now returns the host's current time.
	Now() time.Time

	// AwaitUntil blocks until cond returns true or the host clock reaches
	// deadline. It reports whether cond was satisfied. Hosts re-evaluate cond
	// whenever a signal may have changed state.
	AwaitUntil(deadline time.Time, cond func() bool) (bool, error)
}

// Logger is the key-value logger used by the state machine.
// Both *slog.Logger and Temporal's log.Logger satisfy it.
type Logger interface {
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Host starts negotiations and hands out handles to running ones.
type Host interface {
	// Start launches a negotiation for order. It fails with ErrDuplicateOrder
	// when one is already active for order.ID.
	Start(ctx context.Context, order domain.Order) (Handle, error)

	// Attach returns a handle to a negotiation started earlier, possibly by
	// another process. It fails with ErrUnknownNegotiation if the host cannot reach it.
	Attach(ctx context.Context, orderID, workflowID string) (Handle, error)
}

// Handle addresses one running or finished negotiation.
type Handle interface {
	OrderID() string
	WorkflowID() string

	// Quote returns the current quote, or nil before one was created. Never blocks on the negotiation.
	Quote(ctx context.Context) (*domain.Quote, error)

	// Accept and Reject deliver fire-and-forget decision signals.
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error

	// AwaitOutcome waits up to timeout for the terminal outcome. A timeout <= 0
	// polls without blocking. Returns ErrOutcomeTimeout if still running.
	AwaitOutcome(ctx context.Context, timeout time.Duration) (domain.Outcome, error)
}
