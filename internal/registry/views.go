package registry

import (
	"time"

	"github.com/ahrav/go-rfq/internal/domain"
)

// SubmitRequest is a client's request for quote. OrderID is optional; a UUID
// is generated when it is empty.
type SubmitRequest struct {
	OrderID     string `json:"orderId,omitempty"`
	ProductType string `json:"productType"`
	Quantity    int    `json:"quantity"`
	Client      string `json:"client"`
}

// SubmitResponse identifies the negotiation started for a submission.
type SubmitResponse struct {
	OrderID    string             `json:"orderId"`
	WorkflowID string             `json:"workflowId"`
	Status     domain.OrderStatus `json:"status"`
}

// QuoteView is a quote as presented to clients. IsExpired is judged against
// the registry clock at the time of the read.
type QuoteView struct {
	OrderID   string    `json:"orderId"`
	Price     float64   `json:"price"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsExpired bool      `json:"isExpired"`
}

func newQuoteView(q domain.Quote, now time.Time) QuoteView {
	return QuoteView{
		OrderID:   q.OrderID,
		Price:     q.Price,
		ExpiresAt: q.ExpiresAt,
		IsExpired: q.Expired(now),
	}
}

// StatusView is the externally visible state of one negotiation.
type StatusView struct {
	OrderID    string             `json:"orderId"`
	WorkflowID string             `json:"workflowId"`
	Status     domain.OrderStatus `json:"status"`
	Quote      *QuoteView         `json:"quote,omitempty"`
	Outcome    *domain.Outcome    `json:"outcome,omitempty"`
}
