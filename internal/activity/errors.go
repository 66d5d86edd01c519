package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// Activity-specific errors for operational and business failure classification.
var (
	// ErrActivityValidation is returned when activity input validation fails
	// due to missing required fields. This is a non-retryable error indicating
	// a programming error upstream: orders are validated before any later step.
	ErrActivityValidation = errors.New("activity input validation failed")

	// ErrQuoteMismatch is returned when a quote does not belong to the order
	// being executed.
	ErrQuoteMismatch = errors.New("quote does not belong to order")

	// ErrVenueUnavailable is returned when the venue rejected the execution or
	// its throttle could not admit the order before the activity deadline.
	// Temporal retries it.
	ErrVenueUnavailable = errors.New("execution venue unavailable")

	// ErrLedgerUnavailable is returned when the booking ledger could not be
	// written. Temporal retries it; the ledger write is idempotent.
	ErrLedgerUnavailable = errors.New("booking ledger unavailable")
)

// Application error types attached to Temporal errors.
const (
	errTypeInvalidInput = "InvalidInput"
	errTypeVenue        = "VenueUnavailable"
	errTypeLedger       = "LedgerUnavailable"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
// The tag parameter categorizes the error type for monitoring and debugging.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a Temporal application error that the
// workflow's retry policy may retry.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}
