// Package client implements the negotiation Host on a Temporal cluster.
// Negotiations are workflow executions with id rfq-<orderId>; decisions are
// signals and the quote is read through the quote-status query.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/negotiation"
	"github.com/ahrav/go-rfq/internal/workflow"
)

// Host starts and addresses negotiation workflows through a Temporal client.
type Host struct {
	client    sdkclient.Client
	taskQueue string
	logger    *slog.Logger
}

var _ negotiation.Host = (*Host)(nil)

// NewHost creates a host that schedules negotiations on taskQueue.
func NewHost(c sdkclient.Client, taskQueue string, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{client: c, taskQueue: taskQueue, logger: logger}
}

// Start begins the workflow for order. A running workflow with the same id
// yields ErrDuplicateOrder; a closed one is replaced by a new run.
func (h *Host) Start(ctx context.Context, order domain.Order) (negotiation.Handle, error) {
	opts := sdkclient.StartWorkflowOptions{
		ID:                                       workflow.WorkflowID(order.ID),
		TaskQueue:                                h.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	run, err := h.client.ExecuteWorkflow(ctx, opts, workflow.WorkflowName, order)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, negotiation.ErrDuplicateOrder
		}
		return nil, fmt.Errorf("failed to start negotiation for order %s: %w", order.ID, err)
	}

	h.logger.Info("Negotiation workflow started",
		"order_id", order.ID,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID())

	return &handle{host: h, orderID: order.ID, workflowID: run.GetID(), runID: run.GetRunID()}, nil
}

// Attach verifies the workflow exists and returns a handle to its latest run.
func (h *Host) Attach(ctx context.Context, orderID, workflowID string) (negotiation.Handle, error) {
	if workflowID == "" {
		workflowID = workflow.WorkflowID(orderID)
	}
	if _, err := h.client.DescribeWorkflowExecution(ctx, workflowID, ""); err != nil {
		if isNotFound(err) {
			return nil, negotiation.ErrUnknownNegotiation
		}
		return nil, fmt.Errorf("failed to describe negotiation %s: %w", workflowID, err)
	}
	return &handle{host: h, orderID: orderID, workflowID: workflowID}, nil
}

type handle struct {
	host       *Host
	orderID    string
	workflowID string
	runID      string
}

func (h *handle) OrderID() string    { return h.orderID }
func (h *handle) WorkflowID() string { return h.workflowID }

// Quote queries the workflow for its current quote.
func (h *handle) Quote(ctx context.Context) (*domain.Quote, error) {
	val, err := h.host.client.QueryWorkflow(ctx, h.workflowID, h.runID, workflow.QuoteStatusQuery)
	if err != nil {
		if isNotFound(err) {
			return nil, negotiation.ErrUnknownNegotiation
		}
		return nil, fmt.Errorf("failed to query quote for %s: %w", h.workflowID, err)
	}

	if val == nil || !val.HasValue() {
		return nil, nil
	}
	var q *domain.Quote
	if err := val.Get(&q); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", h.workflowID, err)
	}
	return q, nil
}

func (h *handle) Accept(ctx context.Context) error { return h.signal(ctx, workflow.AcceptSignal) }
func (h *handle) Reject(ctx context.Context) error { return h.signal(ctx, workflow.RejectSignal) }

// signal is fire-and-forget: a signal to a closed workflow is dropped like a
// late signal to a running one.
func (h *handle) signal(ctx context.Context, name string) error {
	err := h.host.client.SignalWorkflow(ctx, h.workflowID, h.runID, name, nil)
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		h.host.logger.Info("Signal dropped for closed negotiation",
			"workflow_id", h.workflowID,
			"signal", name)
		return nil
	}
	return fmt.Errorf("failed to signal %s to %s: %w", name, h.workflowID, err)
}

// AwaitOutcome waits up to timeout for the workflow result. A non-positive
// timeout checks the execution status and never blocks on a running workflow.
func (h *handle) AwaitOutcome(ctx context.Context, timeout time.Duration) (domain.Outcome, error) {
	if timeout <= 0 {
		resp, err := h.host.client.DescribeWorkflowExecution(ctx, h.workflowID, h.runID)
		if err != nil {
			if isNotFound(err) {
				return domain.Outcome{}, negotiation.ErrUnknownNegotiation
			}
			return domain.Outcome{}, fmt.Errorf("failed to describe negotiation %s: %w", h.workflowID, err)
		}
		if resp.GetWorkflowExecutionInfo().GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
			return domain.Outcome{}, negotiation.ErrOutcomeTimeout
		}
		return h.result(ctx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	o, err := h.result(waitCtx)
	if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
		return domain.Outcome{}, negotiation.ErrOutcomeTimeout
	}
	return o, err
}

// result fetches the workflow result. Executions that closed without a
// result (terminated, cancelled, timed out) report ProcessingFailed.
func (h *handle) result(ctx context.Context) (domain.Outcome, error) {
	var o domain.Outcome
	err := h.host.client.GetWorkflow(ctx, h.workflowID, h.runID).Get(ctx, &o)
	if err == nil {
		return o, nil
	}
	if ctx.Err() != nil {
		return domain.Outcome{}, ctx.Err()
	}
	if isNotFound(err) {
		return domain.Outcome{}, negotiation.ErrUnknownNegotiation
	}

	h.host.logger.Error("Negotiation workflow closed without an outcome",
		"workflow_id", h.workflowID,
		"error", err)
	return domain.ProcessingFailed(h.orderID), nil
}

func isNotFound(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}
