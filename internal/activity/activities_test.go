package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/venue"
	"github.com/ahrav/go-rfq/pkg/activity"
)

func TestValidateOrder(t *testing.T) {
	t.Run("valid order", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.acts.ValidateOrder(context.Background(), sampleOrder())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Order O1 validated", res.Message)

		evs := f.sink.ofType(domain.EventTypeOrderValidated)
		require.Len(t, evs, 1)
		assert.Equal(t, "O1", evs[0].Key)
		assert.True(t, decodeStep(t, evs[0]).Result.Success)
		assert.Equal(t, []observation{{ValidateOrderName, true}}, f.recorder.seen)
	})

	t.Run("rule violations are reported, not raised", func(t *testing.T) {
		f := newFixture(t)
		order := sampleOrder()
		order.Quantity = 0
		order.Client = ""

		res, err := f.acts.ValidateOrder(context.Background(), order)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "quantity must be greater than 0")
		assert.Contains(t, res.Message, "client is required")

		evs := f.sink.ofType(domain.EventTypeOrderValidated)
		require.Len(t, evs, 1)
		assert.False(t, decodeStep(t, evs[0]).Result.Success)
		assert.Equal(t, []observation{{ValidateOrderName, false}}, f.recorder.seen)
	})
}

func TestCreateQuote(t *testing.T) {
	t.Run("prices at base price times quantity", func(t *testing.T) {
		f := newFixture(t)
		now := f.clock.Now()

		q, err := f.acts.CreateQuote(context.Background(), sampleOrder())
		require.NoError(t, err)
		assert.Equal(t, "O1", q.OrderID)
		assert.InDelta(t, 1000.0, q.Price, 1e-9)
		assert.True(t, q.QuotedAt.Equal(now))
		assert.True(t, q.ExpiresAt.Equal(now.Add(15*time.Minute)))
		assert.Len(t, f.sink.ofType(domain.EventTypeQuoteCreated), 1)
	})

	t.Run("configurable price and ttl", func(t *testing.T) {
		f := newFixture(t, WithBasePrice(2.5), WithQuoteTTL(time.Minute))

		q, err := f.acts.CreateQuote(context.Background(), sampleOrder())
		require.NoError(t, err)
		assert.InDelta(t, 25.0, q.Price, 1e-9)
		assert.Equal(t, time.Minute, q.ExpiresAt.Sub(q.QuotedAt))
	})

	t.Run("empty order id is non-retryable", func(t *testing.T) {
		f := newFixture(t)
		order := sampleOrder()
		order.ID = ""

		_, err := f.acts.CreateQuote(context.Background(), order)
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.True(t, appErr.NonRetryable())
		assert.Equal(t, errTypeInvalidInput, appErr.Type())
		assert.ErrorIs(t, err, ErrActivityValidation)
	})
}

func TestExecuteOrder(t *testing.T) {
	order := sampleOrder()
	quote := domain.Quote{OrderID: "O1", Price: 1000}

	t.Run("executes at quoted price", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.acts.ExecuteOrder(context.Background(), order, quote)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Order O1 executed at 1000.0", res.Message)
		assert.Len(t, f.sink.ofType(domain.EventTypeOrderExecuted), 1)
	})

	t.Run("quote for another order fails the step", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.acts.ExecuteOrder(context.Background(), order, domain.Quote{OrderID: "O2", Price: 5})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "does not match")
	})

	t.Run("venue throttle honours cancellation", func(t *testing.T) {
		f := newFixture(t, WithVenueLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

		_, err := f.acts.ExecuteOrder(context.Background(), order, quote)
		require.NoError(t, err, "first call uses the burst")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = f.acts.ExecuteOrder(ctx, order, quote)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrVenueUnavailable)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.False(t, appErr.NonRetryable())
	})

	t.Run("venue failure is retryable", func(t *testing.T) {
		rec := &recordingRecorder{}
		f := newFixture(t, WithVenue(failingVenue{}), WithRecorder(rec))

		_, err := f.acts.ExecuteOrder(context.Background(), order, quote)
		require.ErrorIs(t, err, ErrVenueUnavailable)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.False(t, appErr.NonRetryable())
		assert.Empty(t, f.sink.ofType(domain.EventTypeOrderExecuted))
		require.Len(t, rec.seen, 1)
		assert.False(t, rec.seen[0].success)
	})

	t.Run("open breaker fails fast", func(t *testing.T) {
		b := venue.NewBreaker(failingVenue{}, venue.BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})
		f := newFixture(t, WithVenue(b))

		_, err := f.acts.ExecuteOrder(context.Background(), order, quote)
		require.ErrorIs(t, err, ErrVenueUnavailable)
		_, err = f.acts.ExecuteOrder(context.Background(), order, quote)
		require.ErrorIs(t, err, venue.ErrCircuitOpen)
	})
}

func TestBookOrder(t *testing.T) {
	t.Run("books once across retries", func(t *testing.T) {
		f := newFixture(t)

		for range 3 {
			res, err := f.acts.BookOrder(context.Background(), sampleOrder())
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, "Order booked with ID O1", res.Message)
		}

		b, err := f.ledger.Get(context.Background(), "O1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", b.Client)
		assert.Equal(t, 10, b.Quantity)
	})

	t.Run("resubmitted order books again", func(t *testing.T) {
		f := newFixture(t)
		runCtx := func(runID string) context.Context {
			return activity.WithWorkflowContext(context.Background(), activity.WorkflowContext{
				WorkflowID: "rfq-O1", RunID: runID, ActivityID: "book", Attempt: 1,
			})
		}

		_, err := f.acts.BookOrder(runCtx("run-1"), sampleOrder())
		require.NoError(t, err)
		first, err := f.ledger.Get(context.Background(), "O1")
		require.NoError(t, err)

		f.clock.Add(time.Hour)
		order := sampleOrder()
		order.Quantity = 25
		res, err := f.acts.BookOrder(runCtx("run-2"), order)
		require.NoError(t, err)
		assert.True(t, res.Success)

		second, err := f.ledger.Get(context.Background(), "O1")
		require.NoError(t, err)
		assert.Equal(t, "run-2", second.RunID)
		assert.Equal(t, 25, second.Quantity)
		assert.True(t, second.BookedAt.After(first.BookedAt))
	})

	t.Run("ledger outage is retryable", func(t *testing.T) {
		base := activity.NewBaseActivities(nil, nil)
		acts := NewActivities(base, failingLedger{})

		_, err := acts.BookOrder(context.Background(), sampleOrder())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLedgerUnavailable)

		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.False(t, appErr.NonRetryable())
	})
}

func TestEvents_CarryWorkflowContext(t *testing.T) {
	f := newFixture(t)
	ctx := activity.WithWorkflowContext(context.Background(), activity.WorkflowContext{
		WorkflowID: "rfq-O1", RunID: "run-1", ActivityID: "a1", Attempt: 1,
	})

	_, err := f.acts.ValidateOrder(ctx, sampleOrder())
	require.NoError(t, err)
	_, err = f.acts.ValidateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	evs := f.sink.ofType(domain.EventTypeOrderValidated)
	require.Len(t, evs, 2)
	assert.Equal(t, "rfq-O1", evs[0].WorkflowID)
	assert.Equal(t, "run-1", evs[0].RunID)
	assert.Equal(t, evs[0].IdempotencyKey, evs[1].IdempotencyKey, "retries reuse the idempotency key")
	assert.NotEqual(t, evs[0].ID, evs[1].ID)
	assert.Equal(t, eventSource, evs[0].Source)
}

func TestActivities_InTemporalEnvironment(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	f := newFixture(t)
	env.RegisterActivity(f.acts.CreateQuote)

	val, err := env.ExecuteActivity(f.acts.CreateQuote, sampleOrder())
	require.NoError(t, err)

	var q domain.Quote
	require.NoError(t, val.Get(&q))
	assert.InDelta(t, 1000.0, q.Price, 1e-9)

	evs := f.sink.ofType(domain.EventTypeQuoteCreated)
	require.Len(t, evs, 1)
	assert.NotEmpty(t, evs[0].WorkflowID)
	assert.NotEqual(t, "local", evs[0].WorkflowID)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1000.0", formatPrice(1000))
	assert.Equal(t, "12.5", formatPrice(12.5))
	assert.Equal(t, "0.0", formatPrice(0))
}
