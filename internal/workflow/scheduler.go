package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-rfq/internal/activity"
	"github.com/ahrav/go-rfq/internal/domain"
)

// scheduler implements negotiation.Scheduler on a workflow context.
type scheduler struct {
	ctx workflow.Context
	// pending applies buffered signals before cond is evaluated.
	pending func()
}

func newScheduler(ctx workflow.Context, pending func()) *scheduler {
	if pending == nil {
		pending = func() {}
	}
	return &scheduler{ctx: ctx, pending: pending}
}

func (s *scheduler) Now() time.Time { return workflow.Now(s.ctx) }

// AwaitUntil blocks on a durable timer raced against cond. Temporal
// re-evaluates cond after every signal, so no polling is needed. Signals
// delivered with the timer are applied before the caller inspects state.
func (s *scheduler) AwaitUntil(deadline time.Time, cond func() bool) (bool, error) {
	check := func() bool {
		s.pending()
		return cond()
	}
	timeout := deadline.Sub(workflow.Now(s.ctx))
	if timeout <= 0 {
		return check(), nil
	}
	ok, err := workflow.AwaitWithTimeout(s.ctx, timeout, check)
	s.pending()
	return ok, err
}

func (s *scheduler) ValidateOrder(order domain.Order) (domain.StepResult, error) {
	var res domain.StepResult
	err := workflow.ExecuteActivity(s.ctx, activity.ValidateOrderName, order).Get(s.ctx, &res)
	return res, activityFailure(err)
}

func (s *scheduler) CreateQuote(order domain.Order) (domain.Quote, error) {
	var q domain.Quote
	err := workflow.ExecuteActivity(s.ctx, activity.CreateQuoteName, order).Get(s.ctx, &q)
	return q, activityFailure(err)
}

func (s *scheduler) ExecuteOrder(order domain.Order, quote domain.Quote) (domain.StepResult, error) {
	var res domain.StepResult
	err := workflow.ExecuteActivity(s.ctx, activity.ExecuteOrderName, order, quote).Get(s.ctx, &res)
	return res, activityFailure(err)
}

func (s *scheduler) BookOrder(order domain.Order) (domain.StepResult, error) {
	var res domain.StepResult
	err := workflow.ExecuteActivity(s.ctx, activity.BookOrderName, order).Get(s.ctx, &res)
	return res, activityFailure(err)
}

// activityFailure strips Temporal's activity envelope so outcome messages
// carry the step's own failure rather than scheduling metadata.
func activityFailure(err error) error {
	if err == nil {
		return nil
	}
	var actErr *temporal.ActivityError
	if errors.As(err, &actErr) {
		if cause := errors.Unwrap(actErr); cause != nil {
			return cause
		}
	}
	return err
}
