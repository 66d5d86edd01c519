// Package domain provides the core types of the request-for-quote process.
// It defines orders, quotes, step results, client decisions and terminal
// outcomes shared by the negotiation state machine, its activities and the
// registry that fronts it. All values crossing a workflow boundary are plain
// JSON-serializable structs so Temporal's default data converter can carry them.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Order is an immutable request for quote submitted by a client.
// It is created once at submission and never mutated afterwards.
type Order struct {
	// ID uniquely identifies the order. Caller-supplied or a generated UUID.
	ID string `json:"orderId" validate:"required"`

	// ProductType is the free-form product being priced (e.g. "Equity Swap").
	ProductType string `json:"productType" validate:"required"`

	// Quantity is the number of units requested and drives the quote price.
	Quantity int `json:"quantity" validate:"gt=0"`

	// Client identifies who requested the quote.
	Client string `json:"client" validate:"required"`
}

// NewOrder builds and validates an order. An empty id is replaced with a
// freshly generated UUID.
func NewOrder(id, productType string, quantity int, client string) (Order, error) {
	if id == "" {
		id = uuid.NewString()
	}
	o := Order{
		ID:          id,
		ProductType: productType,
		Quantity:    quantity,
		Client:      client,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks the order against its field constraints.
func (o *Order) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	return nil
}

// String returns a compact human-readable form used in logs.
func (o Order) String() string {
	return fmt.Sprintf("%s[%s x%d for %s]", o.ID, o.ProductType, o.Quantity, o.Client)
}
