package inproc

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-rfq/internal/activity"
	"github.com/ahrav/go-rfq/internal/domain"
	pkgactivity "github.com/ahrav/go-rfq/pkg/activity"
)

// retryPolicy mirrors the workflow's activity options.
type retryPolicy struct {
	timeout     time.Duration
	maxAttempts int
	initial     time.Duration
}

// scheduler implements negotiation.Scheduler for one hosted run.
type scheduler struct {
	host *Host
	run  *run
	ctx  context.Context
}

func (s *scheduler) Now() time.Time { return s.host.clock.Now() }

// AwaitUntil blocks until cond holds, the host clock reaches deadline or the
// host shuts down. Signals nudge the run's wake channel to re-check cond.
func (s *scheduler) AwaitUntil(deadline time.Time, cond func() bool) (bool, error) {
	clk := s.host.clock
	for {
		if cond() {
			return true, nil
		}
		now := clk.Now()
		if !now.Before(deadline) {
			return false, nil
		}

		timer := clk.Timer(deadline.Sub(now))
		// A virtual clock may have moved between reading now and arming the
		// timer; such a timer would never fire.
		if cond() || !clk.Now().Before(deadline) {
			timer.Stop()
			continue
		}

		select {
		case <-s.run.wake:
			timer.Stop()
		case <-timer.C:
			return cond(), nil
		case <-s.ctx.Done():
			timer.Stop()
			return false, s.ctx.Err()
		}
	}
}

func (s *scheduler) ValidateOrder(order domain.Order) (domain.StepResult, error) {
	return call(s, activity.ValidateOrderName, func(ctx context.Context) (domain.StepResult, error) {
		return s.host.acts.ValidateOrder(ctx, order)
	})
}

func (s *scheduler) CreateQuote(order domain.Order) (domain.Quote, error) {
	return call(s, activity.CreateQuoteName, func(ctx context.Context) (domain.Quote, error) {
		return s.host.acts.CreateQuote(ctx, order)
	})
}

func (s *scheduler) ExecuteOrder(order domain.Order, quote domain.Quote) (domain.StepResult, error) {
	return call(s, activity.ExecuteOrderName, func(ctx context.Context) (domain.StepResult, error) {
		return s.host.acts.ExecuteOrder(ctx, order, quote)
	})
}

func (s *scheduler) BookOrder(order domain.Order) (domain.StepResult, error) {
	return call(s, activity.BookOrderName, func(ctx context.Context) (domain.StepResult, error) {
		return s.host.acts.BookOrder(ctx, order)
	})
}

// call runs one activity with a per-attempt deadline and the host's retry
// policy. Non-retryable application errors end the loop at once.
func call[T any](s *scheduler, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := s.host.retry
	attempts := max(policy.maxAttempts, 1)
	backoff := policy.initial

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(backoff); err != nil {
				return zero, err
			}
			backoff *= 2
		}

		res, err := runAttempt(s, name, int32(attempt), fn)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) || s.ctx.Err() != nil {
			break
		}
		s.host.logger.Warn("Activity attempt failed",
			"activity", name,
			"workflow_id", s.run.workflowID,
			"attempt", attempt,
			"error", err)
	}
	return zero, lastErr
}

func runAttempt[T any](s *scheduler, name string, attempt int32, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.host.retry.timeout)
	defer cancel()
	ctx = pkgactivity.WithWorkflowContext(ctx, pkgactivity.WorkflowContext{
		WorkflowID: s.run.workflowID,
		RunID:      s.run.runID,
		ActivityID: name,
		Attempt:    attempt,
	})
	return fn(ctx)
}

func (s *scheduler) sleep(d time.Duration) error {
	timer := s.host.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func retryable(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return !appErr.NonRetryable()
	}
	return !errors.Is(err, context.Canceled)
}
