// Package inproc hosts negotiations inside the current process: one goroutine
// per order, signals delivered straight to the state machine and a clock
// that can be virtual. It backs single-node simulations and tests; durable
// hosting is the Temporal workflow in internal/workflow.
package inproc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/negotiation"
	"github.com/ahrav/go-rfq/internal/workflow"
)

// Activities is the context-aware activity set the host drives.
// *activity.Activities satisfies it.
type Activities interface {
	ValidateOrder(ctx context.Context, order domain.Order) (domain.StepResult, error)
	CreateQuote(ctx context.Context, order domain.Order) (domain.Quote, error)
	ExecuteOrder(ctx context.Context, order domain.Order, quote domain.Quote) (domain.StepResult, error)
	BookOrder(ctx context.Context, order domain.Order) (domain.StepResult, error)
}

// Option configures a Host.
type Option func(*Host)

// WithClock drives timers and timestamps from clk. Use clock.NewMock for
// simulations.
func WithClock(clk clock.Clock) Option { return func(h *Host) { h.clock = clk } }

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option { return func(h *Host) { h.logger = l } }

// WithActivityTimeout bounds each activity attempt.
func WithActivityTimeout(d time.Duration) Option { return func(h *Host) { h.retry.timeout = d } }

// WithRetry sets how often a failed activity is attempted and the first
// backoff interval; the interval doubles on every retry.
func WithRetry(maxAttempts int, initial time.Duration) Option {
	return func(h *Host) {
		h.retry.maxAttempts = maxAttempts
		h.retry.initial = initial
	}
}

// Host runs negotiations in goroutines. It implements negotiation.Host.
type Host struct {
	acts   Activities
	clock  clock.Clock
	logger *slog.Logger
	retry  retryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
}

var _ negotiation.Host = (*Host)(nil)

// NewHost creates a host that executes acts.
func NewHost(acts Activities, opts ...Option) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		acts:   acts,
		clock:  clock.New(),
		logger: slog.Default(),
		retry: retryPolicy{
			timeout:     workflow.ActivityTimeout,
			maxAttempts: 3,
			initial:     time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// run is one hosted negotiation.
type run struct {
	n          *negotiation.Negotiation
	workflowID string
	runID      string
	wake       chan struct{}
}

func (r *run) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *run) finished() bool {
	select {
	case <-r.n.Done():
		return true
	default:
		return false
	}
}

// Start launches a negotiation for order. A finished negotiation for the same
// order id may be replaced; an active one may not.
func (h *Host) Start(_ context.Context, order domain.Order) (negotiation.Handle, error) {
	if err := h.ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if existing, ok := h.runs[order.ID]; ok && !existing.finished() {
		h.mu.Unlock()
		return nil, negotiation.ErrDuplicateOrder
	}
	r := &run{
		workflowID: workflow.WorkflowID(order.ID),
		runID:      uuid.NewString(),
		wake:       make(chan struct{}, 1),
	}
	logger := h.logger.With("workflow_id", r.workflowID, "run_id", r.runID)
	r.n = negotiation.New(order, negotiation.WithLogger(logger))
	h.runs[order.ID] = r
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		outcome, err := r.n.Run(&scheduler{host: h, run: r, ctx: h.ctx})
		if err != nil {
			logger.Error("Negotiation ended abnormally",
				"order_id", order.ID,
				"outcome", outcome.String(),
				"error", err)
		}
	}()

	return &handle{run: r}, nil
}

// Attach returns a handle to a negotiation started on this host.
func (h *Host) Attach(_ context.Context, orderID, _ string) (negotiation.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[orderID]
	if !ok {
		return nil, negotiation.ErrUnknownNegotiation
	}
	return &handle{run: r}, nil
}

// Snapshot returns the live state of the negotiation for orderID.
func (h *Host) Snapshot(orderID string) (negotiation.State, bool) {
	h.mu.Lock()
	r, ok := h.runs[orderID]
	h.mu.Unlock()
	if !ok {
		return negotiation.State{}, false
	}
	return r.n.Snapshot(), true
}

// Close cancels running negotiations and waits for their goroutines.
func (h *Host) Close() error {
	h.cancel()
	h.wg.Wait()
	return nil
}

// handle implements negotiation.Handle for a hosted run.
type handle struct {
	run *run
}

func (h *handle) OrderID() string    { return h.run.n.Order().ID }
func (h *handle) WorkflowID() string { return h.run.workflowID }

func (h *handle) Quote(context.Context) (*domain.Quote, error) {
	return h.run.n.Quote(), nil
}

// Accept delivers an accept signal. Like a Temporal signal it is
// fire-and-forget: an accept outside the decision window is dropped.
func (h *handle) Accept(context.Context) error {
	h.run.n.Accept()
	h.run.nudge()
	return nil
}

// Reject delivers a reject signal under the same rules as Accept.
func (h *handle) Reject(context.Context) error {
	h.run.n.Reject()
	h.run.nudge()
	return nil
}

// AwaitOutcome waits up to timeout of wall time for the terminal outcome.
// A non-positive timeout polls.
func (h *handle) AwaitOutcome(ctx context.Context, timeout time.Duration) (domain.Outcome, error) {
	if o, ok := h.run.n.Outcome(); ok {
		return o, nil
	}
	if timeout <= 0 {
		return domain.Outcome{}, negotiation.ErrOutcomeTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.run.n.Done():
		o, _ := h.run.n.Outcome()
		return o, nil
	case <-timer.C:
		return domain.Outcome{}, negotiation.ErrOutcomeTimeout
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}
