// Package worker exposes helpers to register workflows/activities with a Temporal worker.
package worker

import (
	sdkactivity "go.temporal.io/sdk/activity"
	sdkworkflow "go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-rfq/internal/activity"
	"github.com/ahrav/go-rfq/internal/workflow"
)

// Registrar is the registration surface shared by a Temporal worker and the
// SDK's test environments.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options sdkworkflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options sdkactivity.RegisterOptions)
}

// RegisterAll registers the negotiation workflow and its activities under the
// names the workflow dispatches by. This function must be called during
// worker initialization before starting the worker and only once.
func RegisterAll(w Registrar, acts *activity.Activities) {
	w.RegisterWorkflowWithOptions(workflow.NegotiationWorkflow,
		sdkworkflow.RegisterOptions{Name: workflow.WorkflowName})

	w.RegisterActivityWithOptions(acts.ValidateOrder, sdkactivity.RegisterOptions{Name: activity.ValidateOrderName})
	w.RegisterActivityWithOptions(acts.CreateQuote, sdkactivity.RegisterOptions{Name: activity.CreateQuoteName})
	w.RegisterActivityWithOptions(acts.ExecuteOrder, sdkactivity.RegisterOptions{Name: activity.ExecuteOrderName})
	w.RegisterActivityWithOptions(acts.BookOrder, sdkactivity.RegisterOptions{Name: activity.BookOrderName})
}
