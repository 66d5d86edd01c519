// Package workflow hosts the order negotiation state machine inside a
// Temporal workflow.
//
// NegotiationWorkflow adapts the workflow context to the negotiation
// Scheduler: activities are dispatched by registered name, the decision wait
// is a workflow.AwaitWithTimeout raced against the quote expiry, and client
// decisions arrive as the accept-quote and reject-quote signals. The current
// quote is exposed through the quote-status query.
//
// Workflow code must stay deterministic: time comes from workflow.Now,
// logging goes through workflow.GetLogger, and every side effect lives in
// an activity.
package workflow
