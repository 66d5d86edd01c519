package venue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rfq/internal/domain"
)

var errVenueDown = errors.New("venue down")

var (
	testOrder = domain.Order{ID: "O1", ProductType: "Equity Swap", Quantity: 10, Client: "Acme"}
	testQuote = domain.Quote{OrderID: "O1", Price: 1000}
)

// flakyVenue fails while failing is set.
type flakyVenue struct {
	failing atomic.Bool
	calls   atomic.Int32
	block   chan struct{}
}

func (v *flakyVenue) Execute(ctx context.Context, order domain.Order, quote domain.Quote) (Fill, error) {
	v.calls.Add(1)
	if v.block != nil {
		select {
		case <-v.block:
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		}
	}
	if v.failing.Load() {
		return Fill{}, errVenueDown
	}
	return Fill{OrderID: order.ID, Price: quote.Price}, nil
}

func newTestBreaker(v Venue, cfg BreakerConfig) (*Breaker, *clock.Mock) {
	clk := clock.NewMock()
	b := NewBreaker(v, cfg, WithClock(clk), WithLogger(slog.New(slog.DiscardHandler)))
	b.jitter = func(time.Duration) time.Duration { return 0 }
	return b, clk
}

func execute(b *Breaker) error {
	_, err := b.Execute(context.Background(), testOrder, testQuote)
	return err
}

func TestSimulated_FillsAtQuotedPrice(t *testing.T) {
	fill, err := Simulated{}.Execute(context.Background(), testOrder, testQuote)
	require.NoError(t, err)
	assert.Equal(t, Fill{OrderID: "O1", Price: 1000}, fill)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Simulated{}.Execute(ctx, testOrder, testQuote)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	v := &flakyVenue{}
	v.failing.Store(true)
	b, _ := newTestBreaker(v, BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	for range 3 {
		require.ErrorIs(t, execute(b), errVenueDown)
	}
	assert.Equal(t, StateOpen, b.State())

	require.ErrorIs(t, execute(b), ErrCircuitOpen)
	assert.Equal(t, int32(3), v.calls.Load(), "open breaker does not reach the venue")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	v := &flakyVenue{}
	b, _ := newTestBreaker(v, BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	v.failing.Store(true)
	require.Error(t, execute(b))
	v.failing.Store(false)
	require.NoError(t, execute(b))
	v.failing.Store(true)
	require.Error(t, execute(b))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	v := &flakyVenue{}
	v.failing.Store(true)
	b, clk := newTestBreaker(v, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	require.Error(t, execute(b))
	require.Equal(t, StateOpen, b.State())

	clk.Add(30 * time.Second)
	require.ErrorIs(t, execute(b), ErrCircuitOpen)

	clk.Add(31 * time.Second)
	v.failing.Store(false)
	require.NoError(t, execute(b))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, execute(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	v := &flakyVenue{}
	v.failing.Store(true)
	b, clk := newTestBreaker(v, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	require.Error(t, execute(b))
	clk.Add(2 * time.Minute)

	require.ErrorIs(t, execute(b), errVenueDown)
	assert.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, execute(b), ErrCircuitOpen)
}

func TestBreaker_ProbeLimit(t *testing.T) {
	v := &flakyVenue{}
	v.failing.Store(true)
	b, clk := newTestBreaker(v, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	require.Error(t, execute(b))
	clk.Add(2 * time.Minute)

	v.failing.Store(false)
	v.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, execute(b))
	}()
	require.Eventually(t, func() bool { return v.calls.Load() == 2 }, time.Second, time.Millisecond)

	require.ErrorIs(t, execute(b), ErrProbeLimit)

	close(v.block)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	v := &flakyVenue{block: make(chan struct{})}
	b, _ := newTestBreaker(v, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute, HalfOpenProbes: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Execute(ctx, testOrder, testQuote)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(Simulated{}, BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig(), b.cfg)
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "unknown", State(9).String())
}
