package domain

import (
	"fmt"
	"strings"
)

// Decision is the client's answer to a quote.
// It moves from DecisionPending to exactly one of the other values and never reverses.
type Decision uint8

const (
	// DecisionPending means the client has not answered yet.
	DecisionPending Decision = iota

	// DecisionAccepted means the client accepted the quote before it expired.
	DecisionAccepted

	// DecisionRejected means the client turned the quote down.
	DecisionRejected
)

// String returns the string representation of a Decision.
func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAccepted:
		return "accepted"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OutcomeKind enumerates the terminal states of a negotiation.
type OutcomeKind string

const (
	OutcomeCompleted        OutcomeKind = "completed"
	OutcomeRejected         OutcomeKind = "rejected"
	OutcomeExpired          OutcomeKind = "expired"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeExecutionFailed  OutcomeKind = "execution_failed"
	OutcomeBookingFailed    OutcomeKind = "booking_failed"

	// OutcomeProcessingFailed marks a negotiation that left the decision wait
	// in an inconsistent state. It indicates a scheduler defect, not a client action.
	OutcomeProcessingFailed OutcomeKind = "processing_failed"
)

// Outcome is the terminal, immutable result of one negotiation.
// Message carries the step message for Completed and the *Failed kinds.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	OrderID string      `json:"orderId"`
	Message string      `json:"message,omitempty"`
}

// Completed builds a successful outcome carrying the booking message.
func Completed(orderID, bookingMessage string) Outcome {
	return Outcome{Kind: OutcomeCompleted, OrderID: orderID, Message: bookingMessage}
}

// Rejected builds the outcome for a quote the client turned down.
func Rejected(orderID string) Outcome { return Outcome{Kind: OutcomeRejected, OrderID: orderID} }

// Expired builds the outcome for a quote that timed out without a decision.
func Expired(orderID string) Outcome { return Outcome{Kind: OutcomeExpired, OrderID: orderID} }

// ValidationFailed builds the outcome for an order that failed validation.
func ValidationFailed(orderID, message string) Outcome {
	return Outcome{Kind: OutcomeValidationFailed, OrderID: orderID, Message: message}
}

// ExecutionFailed builds the outcome for an order the venue did not execute.
func ExecutionFailed(orderID, message string) Outcome {
	return Outcome{Kind: OutcomeExecutionFailed, OrderID: orderID, Message: message}
}

// BookingFailed builds the outcome for an executed order that could not be booked.
func BookingFailed(orderID, message string) Outcome {
	return Outcome{Kind: OutcomeBookingFailed, OrderID: orderID, Message: message}
}

// ProcessingFailed builds the anomaly outcome for an inconsistent decision wait.
func ProcessingFailed(orderID string) Outcome {
	return Outcome{Kind: OutcomeProcessingFailed, OrderID: orderID}
}

// String renders the outcome in the legacy textual form consumed by older
// clients that match on fixed phrases.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeCompleted:
		return "Order workflow completed successfully: " + o.Message
	case OutcomeRejected:
		return "Quote rejected by client for order " + o.OrderID
	case OutcomeExpired:
		return "Quote expired for order " + o.OrderID
	case OutcomeValidationFailed:
		return "Validation failed: " + o.Message
	case OutcomeExecutionFailed:
		return "Execution failed: " + o.Message
	case OutcomeBookingFailed:
		return "Booking failed: " + o.Message
	case OutcomeProcessingFailed:
		return "Quote processing failed for order " + o.OrderID
	default:
		return fmt.Sprintf("unknown outcome %q for order %s", o.Kind, o.OrderID)
	}
}

// Status maps the outcome onto the externally visible order status.
func (o Outcome) Status() OrderStatus {
	switch o.Kind {
	case OutcomeCompleted:
		return StatusCompleted
	case OutcomeRejected:
		return StatusRejected
	case OutcomeExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}

// OrderStatus is the coarse status reported to clients of the registry.
type OrderStatus string

const (
	StatusSubmitted  OrderStatus = "SUBMITTED"
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusRejected   OrderStatus = "REJECTED"
	StatusExpired    OrderStatus = "EXPIRED"
	StatusFailed     OrderStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// StatusFromText decodes a legacy outcome string by phrase matching.
// Only use it for outcomes produced by older workers; Outcome.Status is exact.
func StatusFromText(text string) OrderStatus {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "booked"), strings.Contains(lower, "completed successfully"):
		return StatusCompleted
	case strings.Contains(lower, "rejected"):
		return StatusRejected
	case strings.Contains(lower, "expired"):
		return StatusExpired
	default:
		return StatusFailed
	}
}
