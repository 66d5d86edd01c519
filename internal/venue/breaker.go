package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/ahrav/go-rfq/internal/domain"
)

// Circuit breaker errors.
var (
	// ErrCircuitOpen is returned while the breaker rejects executions.
	ErrCircuitOpen = errors.New("venue circuit breaker is open")

	// ErrProbeLimit is returned when every half-open probe slot is taken.
	ErrProbeLimit = errors.New("venue circuit breaker probe limit reached")

	// ErrUnknownState is returned when the breaker holds an invalid state.
	ErrUnknownState = errors.New("unknown circuit state")
)

// jitterDivisor caps the reopen jitter at a tenth of the open timeout.
const jitterDivisor = 10

// State is the circuit breaker state.
type State int32

const (
	// StateClosed lets executions through.
	StateClosed State = iota
	// StateOpen rejects executions.
	StateOpen
	// StateHalfOpen lets a limited number of probe executions through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open a closed breaker.
	FailureThreshold int
	// SuccessThreshold probe successes close a half-open breaker.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes bounds concurrent probes while half-open.
	HalfOpenProbes int
}

// DefaultBreakerConfig returns the thresholds used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock drives the open timeout from clk.
func WithClock(clk clock.Clock) BreakerOption {
	return func(b *Breaker) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithLogger logs state transitions to l.
func WithLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// Breaker wraps a Venue with a circuit breaker. State lives in atomics so
// concurrent activity executions never serialize on the breaker.
type Breaker struct {
	next   Venue
	cfg    BreakerConfig
	clock  clock.Clock
	logger *slog.Logger
	jitter func(limit time.Duration) time.Duration

	state          atomic.Int32
	failures       atomic.Int32
	successes      atomic.Int32
	halfOpenProbes atomic.Int32
	lastFailure    atomic.Int64
}

var _ Venue = (*Breaker)(nil)

// NewBreaker guards next with a circuit breaker. Non-positive thresholds in
// cfg fall back to DefaultBreakerConfig.
func NewBreaker(next Venue, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}

	b := &Breaker{
		next:   next,
		cfg:    cfg,
		clock:  clock.New(),
		logger: slog.Default(),
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.Store(int32(StateClosed))
	return b
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// State returns the current breaker state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Execute implements Venue. Cancellation of ctx is not counted as a venue
// failure.
func (b *Breaker) Execute(ctx context.Context, order domain.Order, quote domain.Quote) (Fill, error) {
	release, err := b.allow()
	if err != nil {
		return Fill{}, err
	}
	defer release()

	fill, err := b.next.Execute(ctx, order, quote)
	switch {
	case err == nil:
		b.recordSuccess()
	case ctx.Err() != nil:
		// Abandoned by the caller; says nothing about venue health.
	default:
		b.recordFailure()
	}
	return fill, err
}

// allow decides whether an execution may proceed. The returned release must
// be called when it completes.
func (b *Breaker) allow() (func(), error) {
	state := b.State()
	switch state {
	case StateClosed:
		return func() {}, nil

	case StateOpen, StateHalfOpen:
		if state == StateOpen {
			last := time.Unix(0, b.lastFailure.Load())
			timeout := b.cfg.OpenTimeout + b.jitter(b.cfg.OpenTimeout/jitterDivisor)
			if b.clock.Now().Sub(last) <= timeout {
				return nil, ErrCircuitOpen
			}
			b.transition(StateOpen, StateHalfOpen)
		}
		return b.acquireProbe()

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, state)
	}
}

func (b *Breaker) acquireProbe() (func(), error) {
	for {
		cur := b.halfOpenProbes.Load()
		if int(cur) >= b.cfg.HalfOpenProbes {
			return nil, ErrProbeLimit
		}
		if b.halfOpenProbes.CompareAndSwap(cur, cur+1) {
			return b.releaseProbe, nil
		}
	}
}

// releaseProbe frees a probe slot, saturating at zero when a transition
// already reset the counter.
func (b *Breaker) releaseProbe() {
	for {
		cur := b.halfOpenProbes.Load()
		if cur == 0 {
			return
		}
		if b.halfOpenProbes.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (b *Breaker) recordSuccess() {
	for {
		state := b.State()
		switch state {
		case StateClosed:
			b.failures.Store(0)
			return

		case StateHalfOpen:
			n := b.successes.Add(1)
			if int(n) < b.cfg.SuccessThreshold {
				return
			}
			if b.transition(StateHalfOpen, StateClosed) {
				return
			}
			b.successes.Add(-1)

		default:
			return
		}
	}
}

func (b *Breaker) recordFailure() {
	b.lastFailure.Store(b.clock.Now().UnixNano())

	for {
		state := b.State()
		switch state {
		case StateClosed:
			n := b.failures.Add(1)
			if int(n) < b.cfg.FailureThreshold {
				return
			}
			if b.transition(StateClosed, StateOpen) {
				return
			}

		case StateHalfOpen:
			if b.transition(StateHalfOpen, StateOpen) {
				return
			}

		default:
			return
		}
	}
}

// transition moves the breaker from one state to another and resets the
// counters. It reports false if the state changed concurrently.
func (b *Breaker) transition(from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.halfOpenProbes.Store(0)

	b.logger.Info("Venue circuit breaker state transition",
		"from", from.String(),
		"to", to.String())
	return true
}
