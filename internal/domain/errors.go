package domain

import "errors"

// ErrInvalidOrder indicates that an order contains invalid data.
var ErrInvalidOrder = errors.New("invalid order")

// ErrInvalidQuote indicates that a quote violates its constraints.
var ErrInvalidQuote = errors.New("invalid quote")

// ErrInvalidEvent indicates that an event envelope or payload is malformed.
var ErrInvalidEvent = errors.New("invalid event")
