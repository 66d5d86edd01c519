package registry

import "errors"

// Registry errors. Submission duplicates surface as negotiation.ErrDuplicateOrder
// and invalid submissions as domain.ErrInvalidOrder.
var (
	// ErrNotFound is returned when no negotiation is registered for the order id.
	ErrNotFound = errors.New("order not found")

	// ErrQuoteNotAvailable is returned when the negotiation has not produced a quote.
	ErrQuoteNotAvailable = errors.New("quote not available")

	// ErrQuoteExpired is returned when accepting a quote past its expiry.
	ErrQuoteExpired = errors.New("quote expired")
)
