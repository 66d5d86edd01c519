package negotiation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/go-rfq/internal/domain"
)

// maxAwaitRounds bounds how often the decision wait is re-armed after waking
// with no decision and an unexpired quote.
const maxAwaitRounds = 3

// Phase is the position of a negotiation in its lifecycle.
type Phase uint8

const (
	PhaseValidating Phase = iota
	PhaseQuoting
	PhaseAwaitingDecision
	PhaseExecuting
	PhaseBooking
	PhaseTerminal
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseQuoting:
		return "quoting"
	case PhaseAwaitingDecision:
		return "awaiting_decision"
	case PhaseExecuting:
		return "executing"
	case PhaseBooking:
		return "booking"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// State is an atomic snapshot of a negotiation.
type State struct {
	Order    domain.Order
	Phase    Phase
	Decision domain.Decision
	Quote    *domain.Quote
	QuotedAt time.Time
	Outcome  *domain.Outcome
}

// Negotiation owns the lifecycle of one order. All fields are guarded by mu;
// the lock is never held across an activity call or a wait.
type Negotiation struct {
	mu       sync.Mutex
	order    domain.Order
	phase    Phase
	decision domain.Decision
	quote    *domain.Quote
	quotedAt time.Time
	outcome  *domain.Outcome
	started  bool
	now      func() time.Time
	done     chan struct{}
	logger   Logger
}

// Option configures a Negotiation.
type Option func(*Negotiation)

// WithLogger sets the logger used for lifecycle and anomaly messages.
func WithLogger(l Logger) Option {
	return func(n *Negotiation) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a negotiation for order in the Validating phase.
func New(order domain.Order, opts ...Option) *Negotiation {
	n := &Negotiation{
		order:  order,
		phase:  PhaseValidating,
		now:    time.Now,
		done:   make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Order returns the negotiated order.
func (n *Negotiation) Order() domain.Order { return n.order }

// Done is closed once the negotiation reaches a terminal outcome.
func (n *Negotiation) Done() <-chan struct{} { return n.done }

// Quote returns a copy of the current quote, or nil before quoting.
func (n *Negotiation) Quote() *domain.Quote {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.quote == nil {
		return nil
	}
	q := *n.quote
	return &q
}

// Phase returns the current phase.
func (n *Negotiation) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// Decision returns the recorded client decision.
func (n *Negotiation) Decision() domain.Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.decision
}

// Outcome returns the terminal outcome once known.
func (n *Negotiation) Outcome() (domain.Outcome, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.outcome == nil {
		return domain.Outcome{}, false
	}
	return *n.outcome, true
}

// Snapshot returns a consistent copy of the whole negotiation state.
func (n *Negotiation) Snapshot() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := State{
		Order:    n.order,
		Phase:    n.phase,
		Decision: n.decision,
		QuotedAt: n.quotedAt,
	}
	if n.quote != nil {
		q := *n.quote
		s.Quote = &q
	}
	if n.outcome != nil {
		o := *n.outcome
		s.Outcome = &o
	}
	return s
}

// Accept records an acceptance. It takes effect only while the negotiation is
// awaiting a decision, no decision is recorded and the quote has not expired;
// an accept at exactly the expiry instant still counts. It reports whether the
// signal changed state.
func (n *Negotiation) Accept() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.decisionOpen() {
		return false
	}
	if n.quote.Expired(n.now()) {
		return false
	}
	n.decision = domain.DecisionAccepted
	return true
}

// Reject records a rejection under the same rules as Accept, without the expiry check.
func (n *Negotiation) Reject() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.decisionOpen() {
		return false
	}
	n.decision = domain.DecisionRejected
	return true
}

// decisionOpen must be called with mu held.
func (n *Negotiation) decisionOpen() bool {
	return n.phase == PhaseAwaitingDecision && n.decision == domain.DecisionPending && n.quote != nil
}

// Run drives the negotiation to its terminal outcome using s. The returned
// outcome is computed exactly once. A non-nil error accompanies the outcome
// only when the host misbehaved (wait anomaly or host cancellation).
func (n *Negotiation) Run(s Scheduler) (domain.Outcome, error) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return domain.Outcome{}, ErrAlreadyRunning
	}
	n.started = true
	n.now = s.Now
	n.mu.Unlock()

	order := n.order
	n.logger.Info("Negotiation started", "order_id", order.ID)

	res, err := s.ValidateOrder(order)
	if err != nil {
		return n.finish(domain.ValidationFailed(order.ID, err.Error())), nil
	}
	if !res.Success {
		return n.finish(domain.ValidationFailed(order.ID, res.Message)), nil
	}

	n.setPhase(PhaseQuoting)
	quote, err := s.CreateQuote(order)
	if err == nil && quote.OrderID != order.ID {
		err = domain.ErrInvalidQuote
	}
	if err != nil {
		n.logger.Error("Quote creation failed", "order_id", order.ID, "error", err)
		return n.finish(domain.ProcessingFailed(order.ID)), nil
	}

	n.mu.Lock()
	n.quote = &quote
	n.quotedAt = s.Now()
	n.phase = PhaseAwaitingDecision
	n.mu.Unlock()
	n.logger.Info("Quote created",
		"order_id", order.ID,
		"price", quote.Price,
		"expires_at", quote.ExpiresAt)

	decision, err := n.awaitDecision(s, quote)
	if err != nil {
		n.logger.Error("Decision wait anomaly", "order_id", order.ID, "error", err)
		return n.finish(domain.ProcessingFailed(order.ID)), err
	}
	switch decision {
	case domain.DecisionRejected:
		return n.finish(domain.Rejected(order.ID)), nil
	case domain.DecisionPending:
		return n.finish(domain.Expired(order.ID)), nil
	}

	res, err = s.ExecuteOrder(order, quote)
	if err != nil {
		return n.finish(domain.ExecutionFailed(order.ID, err.Error())), nil
	}
	if !res.Success {
		return n.finish(domain.ExecutionFailed(order.ID, res.Message)), nil
	}

	n.setPhase(PhaseBooking)
	res, err = s.BookOrder(order)
	if err != nil {
		return n.finish(domain.BookingFailed(order.ID, err.Error())), nil
	}
	if !res.Success {
		return n.finish(domain.BookingFailed(order.ID, res.Message)), nil
	}

	return n.finish(domain.Completed(order.ID, res.Message)), nil
}

// awaitDecision races the client decision against quote expiry. The decision
// window closes atomically with the evaluation: on return the phase is no
// longer AwaitingDecision. Pending with a nil error means the quote expired.
func (n *Negotiation) awaitDecision(s Scheduler, quote domain.Quote) (domain.Decision, error) {
	settled := func() bool {
		return n.Decision() != domain.DecisionPending || !s.Now().Before(quote.ExpiresAt)
	}

	for round := 0; round < maxAwaitRounds; round++ {
		_, waitErr := s.AwaitUntil(quote.ExpiresAt, settled)

		n.mu.Lock()
		// Decision is checked first: a signal that lands on the deadline wins.
		decision := n.decision
		expired := !s.Now().Before(quote.ExpiresAt)
		if decision != domain.DecisionPending || expired || waitErr != nil {
			if decision == domain.DecisionAccepted {
				n.phase = PhaseExecuting
			} else {
				n.phase = PhaseTerminal
			}
			n.mu.Unlock()
			if waitErr != nil && decision == domain.DecisionPending && !expired {
				return decision, waitErr
			}
			return decision, nil
		}
		n.mu.Unlock()

		n.logger.Warn("Decision wait woke early, re-arming",
			"order_id", quote.OrderID,
			"round", round+1,
			"remaining", quote.Remaining(s.Now()))
	}

	n.setPhase(PhaseTerminal)
	return domain.DecisionPending, ErrAwaitAnomaly
}

func (n *Negotiation) setPhase(p Phase) {
	n.mu.Lock()
	n.phase = p
	n.mu.Unlock()
}

// finish records the terminal outcome once and releases waiters.
func (n *Negotiation) finish(o domain.Outcome) domain.Outcome {
	n.mu.Lock()
	if n.outcome != nil {
		o = *n.outcome
		n.mu.Unlock()
		return o
	}
	n.phase = PhaseTerminal
	n.outcome = &o
	close(n.done)
	n.mu.Unlock()

	n.logger.Info("Negotiation finished",
		"order_id", o.OrderID,
		"outcome", string(o.Kind),
		"status", string(o.Status()))
	return o
}
