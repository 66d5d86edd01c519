package domain

import (
	"fmt"
	"time"
)

// Quote is the single, immutable price offered for an order.
// Exactly one quote exists per order; there is no re-quoting.
type Quote struct {
	// OrderID must equal the owning order's ID.
	OrderID string `json:"orderId" validate:"required"`

	// Price is the offered total price.
	Price float64 `json:"price" validate:"gte=0"`

	// QuotedAt records when the quote was created.
	QuotedAt time.Time `json:"quotedAt"`

	// ExpiresAt is the absolute instant after which the quote can no longer be accepted.
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
}

// Validate checks the quote against its field constraints.
func (q *Quote) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuote, err)
	}
	return nil
}

// Expired reports whether the quote is past its expiry at now.
// A quote is still live at exactly ExpiresAt.
func (q Quote) Expired(now time.Time) bool { return now.After(q.ExpiresAt) }

// Remaining returns the time left before expiry, clamped at zero.
func (q Quote) Remaining(now time.Time) time.Duration {
	if d := q.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// StepResult is the transient result of a single activity step.
type StepResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Succeeded builds a successful step result.
func Succeeded(format string, args ...any) StepResult {
	return StepResult{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Failed builds a failed step result.
func Failed(format string, args ...any) StepResult {
	return StepResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
