// Package store persists registry records and the booking ledger.
// Memory implementations serve single-node runs and tests; Redis
// implementations let several registry processes share state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-rfq/internal/domain"
)

var (
	// ErrRecordNotFound indicates no record exists for the order id.
	ErrRecordNotFound = errors.New("order record not found")

	// ErrBookingNotFound indicates the order has not been booked.
	ErrBookingNotFound = errors.New("booking not found")
)

// Record is the registry's persisted view of one negotiation.
type Record struct {
	Order       domain.Order       `json:"order"`
	WorkflowID  string             `json:"workflowId"`
	Status      domain.OrderStatus `json:"status"`
	Quote       *domain.Quote      `json:"quote,omitempty"`
	Outcome     *domain.Outcome    `json:"outcome,omitempty"`
	SubmittedAt time.Time          `json:"submittedAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// OrderID returns the id of the recorded order.
func (r Record) OrderID() string { return r.Order.ID }

// RecordStore persists registry records keyed by order id.
type RecordStore interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, orderID string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// Booking is the ledger entry written when an order is booked. RunID names
// the negotiation run that booked it, so an order id resubmitted after a
// finished run books again instead of reporting the earlier entry.
type Booking struct {
	OrderID   string    `json:"orderId"`
	RunID     string    `json:"runId"`
	BookingID string    `json:"bookingId"`
	Client    string    `json:"client"`
	Quantity  int       `json:"quantity"`
	BookedAt  time.Time `json:"bookedAt"`
}

// BookingLedger records bookings idempotently per run: booking the same
// order and run twice returns the first entry and created=false. Get returns
// the latest booking of an order.
type BookingLedger interface {
	Book(ctx context.Context, b Booking) (stored Booking, created bool, err error)
	Get(ctx context.Context, orderID string) (Booking, error)
}
