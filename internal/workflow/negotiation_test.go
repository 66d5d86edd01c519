package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-rfq/internal/activity"
	"github.com/ahrav/go-rfq/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{ID: "O1", ProductType: "Equity Swap", Quantity: 10, Client: "Acme"}
}

// newEnv returns a workflow environment with the four activities registered
// under their production names and mocked with the happy-path behavior.
// Individual tests override a step by registering a more specific expectation first.
func newEnv(t *testing.T, overrides func(env *testsuite.TestWorkflowEnvironment)) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(
		func(context.Context, domain.Order) (domain.StepResult, error) { return domain.StepResult{}, nil },
		sdkactivity.RegisterOptions{Name: activity.ValidateOrderName})
	env.RegisterActivityWithOptions(
		func(context.Context, domain.Order) (domain.Quote, error) { return domain.Quote{}, nil },
		sdkactivity.RegisterOptions{Name: activity.CreateQuoteName})
	env.RegisterActivityWithOptions(
		func(context.Context, domain.Order, domain.Quote) (domain.StepResult, error) {
			return domain.StepResult{}, nil
		},
		sdkactivity.RegisterOptions{Name: activity.ExecuteOrderName})
	env.RegisterActivityWithOptions(
		func(context.Context, domain.Order) (domain.StepResult, error) { return domain.StepResult{}, nil },
		sdkactivity.RegisterOptions{Name: activity.BookOrderName})

	if overrides != nil {
		overrides(env)
	}

	env.OnActivity(activity.ValidateOrderName, mock.Anything, mock.Anything).
		Return(domain.Succeeded("Order O1 validated"), nil)
	env.OnActivity(activity.CreateQuoteName, mock.Anything, mock.Anything).
		Return(func(_ context.Context, o domain.Order) (domain.Quote, error) {
			now := env.Now()
			return domain.Quote{
				OrderID:   o.ID,
				Price:     100 * float64(o.Quantity),
				QuotedAt:  now,
				ExpiresAt: now.Add(15 * time.Minute),
			}, nil
		})
	env.OnActivity(activity.ExecuteOrderName, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Succeeded("Order O1 executed at 1000.0"), nil)
	env.OnActivity(activity.BookOrderName, mock.Anything, mock.Anything).
		Return(domain.Succeeded("Order booked with ID O1"), nil)

	return env
}

func outcomeOf(t *testing.T, env *testsuite.TestWorkflowEnvironment) domain.Outcome {
	t.Helper()
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var o domain.Outcome
	require.NoError(t, env.GetWorkflowResult(&o))
	return o
}

func TestNegotiationWorkflow_AcceptBeforeExpiry(t *testing.T) {
	env := newEnv(t, nil)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(AcceptSignal, nil)
	}, 2*time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeCompleted, o.Kind)
	assert.Equal(t, "Order workflow completed successfully: Order booked with ID O1", o.String())
	assert.Equal(t, domain.StatusCompleted, o.Status())
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 1)
	env.AssertActivityNumberOfCalls(t, activity.BookOrderName, 1)
}

func TestNegotiationWorkflow_RejectBeforeExpiry(t *testing.T) {
	env := newEnv(t, nil)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(RejectSignal, nil)
	}, time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, "Quote rejected by client for order O1", o.String())
	assert.Equal(t, domain.StatusRejected, o.Status())
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 0)
	env.AssertActivityNumberOfCalls(t, activity.BookOrderName, 0)
}

func TestNegotiationWorkflow_ExpiresWithoutDecision(t *testing.T) {
	env := newEnv(t, nil)
	start := env.Now()

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, "Quote expired for order O1", o.String())
	assert.Equal(t, domain.StatusExpired, o.Status())
	assert.GreaterOrEqual(t, env.Now().Sub(start), 15*time.Minute)
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 0)
	env.AssertActivityNumberOfCalls(t, activity.BookOrderName, 0)
}

func TestNegotiationWorkflow_DecisionAtDeadlineWins(t *testing.T) {
	tests := []struct {
		name   string
		signal string
		want   domain.OutcomeKind
		calls  int
	}{
		{name: "accept", signal: AcceptSignal, want: domain.OutcomeCompleted, calls: 1},
		{name: "reject", signal: RejectSignal, want: domain.OutcomeRejected, calls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Repeated to show the tie-break does not depend on event ordering luck.
			for range 5 {
				env := newEnv(t, nil)
				env.RegisterDelayedCallback(func() {
					env.SignalWorkflow(tt.signal, nil)
				}, 15*time.Minute)

				env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

				o := outcomeOf(t, env)
				require.Equal(t, tt.want, o.Kind)
				env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, tt.calls)
				env.AssertActivityNumberOfCalls(t, activity.BookOrderName, tt.calls)
			}
		})
	}
}

func TestNegotiationWorkflow_ReplaysWithoutDrainOnOldHistories(t *testing.T) {
	env := newEnv(t, nil)
	env.OnGetVersion(drainChangeID, workflow.DefaultVersion, 1).Return(workflow.DefaultVersion)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(AcceptSignal, nil)
	}, 2*time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeCompleted, o.Kind)
}

func TestNegotiationWorkflow_DuplicateSignalsApplyOnce(t *testing.T) {
	env := newEnv(t, nil)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(AcceptSignal, nil)
		env.SignalWorkflow(AcceptSignal, nil)
		env.SignalWorkflow(RejectSignal, nil)
	}, time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeCompleted, o.Kind)
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 1)
	env.AssertActivityNumberOfCalls(t, activity.BookOrderName, 1)
}

func TestNegotiationWorkflow_QuoteStatusQuery(t *testing.T) {
	env := newEnv(t, func(env *testsuite.TestWorkflowEnvironment) {
		env.OnActivity(activity.ValidateOrderName, mock.Anything, mock.Anything).
			After(time.Minute).
			Return(domain.Succeeded("Order O1 validated"), nil).Once()
	})

	var before, after *domain.Quote
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(QuoteStatusQuery)
		require.NoError(t, err)
		require.NoError(t, val.Get(&before))
	}, 30*time.Second)
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(QuoteStatusQuery)
		require.NoError(t, err)
		require.NoError(t, val.Get(&after))
		env.SignalWorkflow(RejectSignal, nil)
	}, 3*time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeRejected, o.Kind)
	assert.Nil(t, before, "no quote before quoting")
	require.NotNil(t, after)
	assert.Equal(t, "O1", after.OrderID)
	assert.InDelta(t, 1000.0, after.Price, 1e-9)
	assert.Equal(t, 15*time.Minute, after.ExpiresAt.Sub(after.QuotedAt))
}

func TestNegotiationWorkflow_SignalsBeforeQuoteAreIgnored(t *testing.T) {
	env := newEnv(t, func(env *testsuite.TestWorkflowEnvironment) {
		env.OnActivity(activity.ValidateOrderName, mock.Anything, mock.Anything).
			After(time.Minute).
			Return(domain.Succeeded("Order O1 validated"), nil).Once()
	})
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(AcceptSignal, nil)
	}, 10*time.Second)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeExpired, o.Kind)
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 0)
}

func TestNegotiationWorkflow_StepFailures(t *testing.T) {
	tests := []struct {
		name      string
		override  func(env *testsuite.TestWorkflowEnvironment)
		signal    bool
		wantKind  domain.OutcomeKind
		wantText  string
		wantCalls map[string]int
	}{
		{
			name: "validation rejects the order",
			override: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activity.ValidateOrderName, mock.Anything, mock.Anything).
					Return(domain.Failed("quantity must be greater than 0"), nil).Once()
			},
			wantKind:  domain.OutcomeValidationFailed,
			wantText:  "Validation failed: quantity must be greater than 0",
			wantCalls: map[string]int{activity.CreateQuoteName: 0},
		},
		{
			name: "quote creation errors",
			override: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activity.CreateQuoteName, mock.Anything, mock.Anything).
					Return(domain.Quote{}, temporal.NewNonRetryableApplicationError("pricing down", "Pricing", nil)).Once()
			},
			wantKind:  domain.OutcomeProcessingFailed,
			wantText:  "Quote processing failed for order O1",
			wantCalls: map[string]int{activity.ExecuteOrderName: 0},
		},
		{
			name: "execution reports failure",
			override: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activity.ExecuteOrderName, mock.Anything, mock.Anything, mock.Anything).
					Return(domain.Failed("venue closed"), nil).Once()
			},
			signal:    true,
			wantKind:  domain.OutcomeExecutionFailed,
			wantText:  "Execution failed: venue closed",
			wantCalls: map[string]int{activity.BookOrderName: 0},
		},
		{
			name: "booking reports failure",
			override: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activity.BookOrderName, mock.Anything, mock.Anything).
					Return(domain.Failed("ledger rejected entry"), nil).Once()
			},
			signal:   true,
			wantKind: domain.OutcomeBookingFailed,
			wantText: "Booking failed: ledger rejected entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, tt.override)
			if tt.signal {
				env.RegisterDelayedCallback(func() {
					env.SignalWorkflow(AcceptSignal, nil)
				}, time.Minute)
			}

			env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

			o := outcomeOf(t, env)
			assert.Equal(t, tt.wantKind, o.Kind)
			assert.Equal(t, tt.wantText, o.String())
			assert.Equal(t, domain.StatusFailed, o.Status())
			for name, n := range tt.wantCalls {
				env.AssertActivityNumberOfCalls(t, name, n)
			}
		})
	}
}

func TestNegotiationWorkflow_TransientExecutionErrorsAreRetried(t *testing.T) {
	env := newEnv(t, func(env *testsuite.TestWorkflowEnvironment) {
		env.OnActivity(activity.ExecuteOrderName, mock.Anything, mock.Anything, mock.Anything).
			Return(domain.StepResult{}, temporal.NewApplicationError("venue timeout", "VenueUnavailable")).Times(3)
	})
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(AcceptSignal, nil)
	}, time.Minute)

	env.ExecuteWorkflow(NegotiationWorkflow, sampleOrder())

	o := outcomeOf(t, env)
	assert.Equal(t, domain.OutcomeExecutionFailed, o.Kind)
	assert.Contains(t, o.Message, "venue timeout")
	assert.NotContains(t, o.Message, "scheduledEventID")
	env.AssertActivityNumberOfCalls(t, activity.ExecuteOrderName, 3)
	env.AssertActivityNumberOfCalls(t, activity.BookOrderName, 0)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "rfq-O1", WorkflowID("O1"))
}
