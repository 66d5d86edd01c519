// Package venue abstracts the market venue that executes accepted orders and
// guards it with a circuit breaker so a failing venue is not hammered by
// activity retries.
package venue

import (
	"context"

	"github.com/ahrav/go-rfq/internal/domain"
)

// Fill is the venue's confirmation of an execution.
type Fill struct {
	OrderID string  `json:"orderId"`
	Price   float64 `json:"price"`
}

// Venue executes an order at its quoted price.
type Venue interface {
	Execute(ctx context.Context, order domain.Order, quote domain.Quote) (Fill, error)
}

// Simulated fills every order at the quoted price.
type Simulated struct{}

// Execute implements Venue.
func (Simulated) Execute(ctx context.Context, order domain.Order, quote domain.Quote) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	return Fill{OrderID: order.ID, Price: quote.Price}, nil
}
