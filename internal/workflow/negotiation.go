package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/negotiation"
)

// Workflow surface names.
const (
	// WorkflowName is the registered name of NegotiationWorkflow.
	WorkflowName = "NegotiationWorkflow"

	// AcceptSignal records the client's acceptance of the quote.
	AcceptSignal = "accept-quote"

	// RejectSignal records the client's rejection of the quote.
	RejectSignal = "reject-quote"

	// QuoteStatusQuery returns the current *domain.Quote, or null before quoting.
	QuoteStatusQuery = "quote-status"

	workflowIDPrefix = "rfq-"

	drainChangeID = "drain-decisions"
)

// ActivityTimeout bounds every activity attempt.
const ActivityTimeout = 30 * time.Second

// WorkflowID returns the workflow id used for an order.
func WorkflowID(orderID string) string { return workflowIDPrefix + orderID }

// activityOptions returns the timeouts and retry policy applied to every step.
// Business failures come back as unsuccessful results and are never retried;
// the policy only covers transient errors.
func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// NegotiationWorkflow runs one order through validate → quote → await
// decision or expiry → execute → book and returns the terminal outcome.
// Business failures are outcomes, not workflow errors.
func NegotiationWorkflow(ctx workflow.Context, order domain.Order) (domain.Outcome, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions())

	n := negotiation.New(order, negotiation.WithLogger(logger))

	if err := workflow.SetQueryHandler(ctx, QuoteStatusQuery, func() (*domain.Quote, error) {
		return n.Quote(), nil
	}); err != nil {
		return domain.Outcome{}, err
	}

	d := newDecisions(ctx, n, logger)
	workflow.Go(ctx, d.receive)

	// Histories recorded before signals were drained on the decision path
	// replay without it.
	var pending func()
	if workflow.GetVersion(ctx, drainChangeID, workflow.DefaultVersion, 1) != workflow.DefaultVersion {
		pending = d.drain
	}

	outcome, err := n.Run(newScheduler(ctx, pending))
	if errors.Is(err, negotiation.ErrAwaitAnomaly) {
		// The outcome is already ProcessingFailed; the anomaly is an operator
		// concern and must not fail the workflow.
		logger.Error("Negotiation ended on a wait anomaly",
			"order_id", order.ID,
			"error", err)
		return outcome, nil
	}
	return outcome, err
}

// decisions applies accept and reject signals to a negotiation. A background
// coroutine receives them while the main coroutine runs activities, and the
// scheduler drains both channels before every decision check so a signal
// buffered in the same workflow task as the expiry timer is seen first.
type decisions struct {
	n      *negotiation.Negotiation
	logger log.Logger
	accept workflow.ReceiveChannel
	reject workflow.ReceiveChannel
}

func newDecisions(ctx workflow.Context, n *negotiation.Negotiation, logger log.Logger) *decisions {
	return &decisions{
		n:      n,
		logger: logger,
		accept: workflow.GetSignalChannel(ctx, AcceptSignal),
		reject: workflow.GetSignalChannel(ctx, RejectSignal),
	}
}

// receive blocks on both channels until the workflow completes.
func (d *decisions) receive(ctx workflow.Context) {
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(d.accept, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, nil)
		d.apply(AcceptSignal, d.n.Accept)
	})
	selector.AddReceive(d.reject, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, nil)
		d.apply(RejectSignal, d.n.Reject)
	})
	for {
		selector.Select(ctx)
	}
}

// drain applies every signal already buffered, without blocking.
func (d *decisions) drain() {
	for d.accept.ReceiveAsync(nil) {
		d.apply(AcceptSignal, d.n.Accept)
	}
	for d.reject.ReceiveAsync(nil) {
		d.apply(RejectSignal, d.n.Reject)
	}
}

func (d *decisions) apply(name string, fn func() bool) {
	if fn() {
		d.logger.Info("Decision recorded", "order_id", d.n.Order().ID, "signal", name)
		return
	}
	d.logger.Info("Decision ignored",
		"order_id", d.n.Order().ID,
		"signal", name,
		"phase", d.n.Phase().String())
}
