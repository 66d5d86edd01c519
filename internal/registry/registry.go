// Package registry maps external order ids to running negotiations. It starts
// negotiations through a negotiation.Host, routes quote reads and client
// decisions to them, and reports order status from their structured outcome.
// Records are persisted so a restarted registry can re-attach to negotiations
// that outlived it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/negotiation"
	"github.com/ahrav/go-rfq/internal/store"
)

// Observer receives registry metrics. *metrics.Collectors satisfies it.
type Observer interface {
	OrderSubmitted()
	DuplicateRejected()
	OutcomeRecorded(status domain.OrderStatus)
	ActiveNegotiations(n int)
}

type noopObserver struct{}

func (noopObserver) OrderSubmitted()                    {}
func (noopObserver) DuplicateRejected()                 {}
func (noopObserver) OutcomeRecorded(domain.OrderStatus) {}
func (noopObserver) ActiveNegotiations(int)             {}

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists records in s. The default is an in-memory store.
func WithStore(s store.RecordStore) Option { return func(r *Registry) { r.records = s } }

// WithClock sets the clock used to judge quote expiry at the boundary. It
// should be the clock the host's activities use.
func WithClock(clk clock.Clock) Option { return func(r *Registry) { r.clock = clk } }

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithObserver reports registry metrics to o.
func WithObserver(o Observer) Option { return func(r *Registry) { r.observer = o } }

// Registry routes client calls to negotiations. It is safe for concurrent use.
type Registry struct {
	host     negotiation.Host
	records  store.RecordStore
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a registry that starts negotiations on host.
func New(host negotiation.Host, opts ...Option) *Registry {
	r := &Registry{
		host:     host,
		records:  store.NewMemoryRecordStore(),
		clock:    clock.New(),
		logger:   slog.Default(),
		observer: noopObserver{},
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// entry is one registered negotiation. While reserved is set the host call
// for it is still in flight and the entry is invisible to lookups. handle is
// nil for entries restored after their negotiation was gone; such entries
// always carry an outcome.
type entry struct {
	order       domain.Order
	workflowID  string
	submittedAt time.Time
	reserved    bool
	handle      negotiation.Handle

	mu      sync.Mutex
	quote   *domain.Quote
	outcome *domain.Outcome
}

func (e *entry) settled() (domain.Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outcome == nil {
		return domain.Outcome{}, false
	}
	return *e.outcome, true
}

func (e *entry) cachedQuote() *domain.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote
}

// Submit validates the request and starts a negotiation for it. An order id
// with an active negotiation is refused with negotiation.ErrDuplicateOrder;
// an id whose negotiation has finished may be submitted again.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	order, err := domain.NewOrder(req.OrderID, req.ProductType, req.Quantity, req.Client)
	if err != nil {
		return SubmitResponse{}, err
	}

	e := &entry{order: order, submittedAt: r.clock.Now(), reserved: true}

	r.mu.Lock()
	prev, exists := r.entries[order.ID]
	if exists && !isFinished(prev) {
		r.mu.Unlock()
		r.observer.DuplicateRejected()
		return SubmitResponse{}, negotiation.ErrDuplicateOrder
	}
	r.entries[order.ID] = e
	r.mu.Unlock()

	h, err := r.host.Start(ctx, order)

	r.mu.Lock()
	if err != nil {
		if exists {
			r.entries[order.ID] = prev
		} else {
			delete(r.entries, order.ID)
		}
		r.mu.Unlock()
		if errors.Is(err, negotiation.ErrDuplicateOrder) {
			r.observer.DuplicateRejected()
			return SubmitResponse{}, err
		}
		return SubmitResponse{}, fmt.Errorf("failed to start negotiation for order %s: %w", order.ID, err)
	}
	e.handle = h
	e.workflowID = h.WorkflowID()
	e.reserved = false
	active := r.activeLocked()
	r.mu.Unlock()

	r.observer.OrderSubmitted()
	r.observer.ActiveNegotiations(active)
	r.persist(ctx, e)

	r.logger.Info("Order submitted",
		"order_id", order.ID,
		"workflow_id", e.workflowID,
		"product_type", order.ProductType,
		"quantity", order.Quantity)

	return SubmitResponse{OrderID: order.ID, WorkflowID: e.workflowID, Status: domain.StatusSubmitted}, nil
}

func isFinished(e *entry) bool {
	if e.reserved {
		return false
	}
	_, ok := e.settled()
	return ok
}

func (r *Registry) lookup(orderID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[orderID]
	if !ok || e.reserved {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return e, nil
}

// activeLocked counts entries without an outcome. r.mu must be held.
func (r *Registry) activeLocked() int {
	n := 0
	for _, e := range r.entries {
		if _, ok := e.settled(); !ok {
			n++
		}
	}
	return n
}

// quote returns the negotiation's quote, or nil before it exists.
func (r *Registry) quote(ctx context.Context, e *entry) (*domain.Quote, error) {
	if q := e.cachedQuote(); q != nil {
		return q, nil
	}
	if e.handle == nil {
		return nil, nil
	}

	q, err := e.handle.Quote(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote for order %s: %w", e.order.ID, err)
	}
	if q == nil {
		return nil, nil
	}

	e.mu.Lock()
	first := e.quote == nil
	if first {
		e.quote = q
	}
	e.mu.Unlock()
	if first {
		r.persist(ctx, e)
	}
	return q, nil
}

// Quote returns the current quote for orderID.
func (r *Registry) Quote(ctx context.Context, orderID string) (QuoteView, error) {
	e, err := r.lookup(orderID)
	if err != nil {
		return QuoteView{}, err
	}
	q, err := r.quote(ctx, e)
	if err != nil {
		return QuoteView{}, err
	}
	if q == nil {
		return QuoteView{}, fmt.Errorf("%w: order %s", ErrQuoteNotAvailable, orderID)
	}
	return newQuoteView(*q, r.clock.Now()), nil
}

// Accept forwards the client's acceptance. Expiry is checked here against the
// registry clock; the negotiation makes the final decision and silently drops
// an accept that arrives after its own deadline.
func (r *Registry) Accept(ctx context.Context, orderID string) error {
	e, q, err := r.decidable(ctx, orderID)
	if err != nil {
		return err
	}
	if q.Expired(r.clock.Now()) {
		return fmt.Errorf("%w: order %s expired at %s", ErrQuoteExpired, orderID, q.ExpiresAt.Format(time.RFC3339))
	}
	if e.handle == nil {
		return nil
	}
	if err := e.handle.Accept(ctx); err != nil {
		return fmt.Errorf("failed to accept quote for order %s: %w", orderID, err)
	}
	r.logger.Info("Quote accepted", "order_id", orderID, "workflow_id", e.workflowID)
	return nil
}

// Reject forwards the client's rejection.
func (r *Registry) Reject(ctx context.Context, orderID string) error {
	e, _, err := r.decidable(ctx, orderID)
	if err != nil {
		return err
	}
	if e.handle == nil {
		return nil
	}
	if err := e.handle.Reject(ctx); err != nil {
		return fmt.Errorf("failed to reject quote for order %s: %w", orderID, err)
	}
	r.logger.Info("Quote rejected", "order_id", orderID, "workflow_id", e.workflowID)
	return nil
}

func (r *Registry) decidable(ctx context.Context, orderID string) (*entry, *domain.Quote, error) {
	e, err := r.lookup(orderID)
	if err != nil {
		return nil, nil, err
	}
	q, err := r.quote(ctx, e)
	if err != nil {
		return nil, nil, err
	}
	if q == nil {
		return nil, nil, fmt.Errorf("%w: order %s", ErrQuoteNotAvailable, orderID)
	}
	return e, q, nil
}

// Status reports the state of orderID without blocking on the negotiation.
func (r *Registry) Status(ctx context.Context, orderID string) (StatusView, error) {
	e, err := r.lookup(orderID)
	if err != nil {
		return StatusView{}, err
	}
	return r.status(ctx, e)
}

func (r *Registry) status(ctx context.Context, e *entry) (StatusView, error) {
	view := StatusView{OrderID: e.order.ID, WorkflowID: e.workflowID}

	o, ok := e.settled()
	if !ok {
		var err error
		o, ok, err = r.poll(ctx, e)
		if err != nil {
			return StatusView{}, err
		}
	}

	var q *domain.Quote
	if ok {
		q = e.cachedQuote()
		view.Status = o.Status()
		view.Outcome = &o
	} else {
		var err error
		if q, err = r.quote(ctx, e); err != nil {
			return StatusView{}, err
		}
		view.Status = domain.StatusSubmitted
		if q != nil {
			view.Status = domain.StatusInProgress
		}
	}

	if q != nil {
		qv := newQuoteView(*q, r.clock.Now())
		view.Quote = &qv
	}
	return view, nil
}

// poll checks for a terminal outcome without blocking.
func (r *Registry) poll(ctx context.Context, e *entry) (domain.Outcome, bool, error) {
	o, err := e.handle.AwaitOutcome(ctx, 0)
	switch {
	case err == nil:
		r.settle(ctx, e, o)
		return o, true, nil
	case errors.Is(err, negotiation.ErrOutcomeTimeout):
		return domain.Outcome{}, false, nil
	default:
		return domain.Outcome{}, false, fmt.Errorf("failed to read outcome for order %s: %w", e.order.ID, err)
	}
}

// settle records the terminal outcome once.
func (r *Registry) settle(ctx context.Context, e *entry, o domain.Outcome) {
	e.mu.Lock()
	if e.outcome != nil {
		e.mu.Unlock()
		return
	}
	e.outcome = &o
	e.mu.Unlock()

	// The quote may have been created and acted on without any read through
	// the registry; keep it for terminal status views.
	if e.cachedQuote() == nil && e.handle != nil {
		if q, err := e.handle.Quote(ctx); err == nil && q != nil {
			e.mu.Lock()
			e.quote = q
			e.mu.Unlock()
		}
	}

	r.mu.RLock()
	active := r.activeLocked()
	r.mu.RUnlock()

	r.observer.OutcomeRecorded(o.Status())
	r.observer.ActiveNegotiations(active)
	r.persist(ctx, e)

	r.logger.Info("Negotiation finished",
		"order_id", e.order.ID,
		"workflow_id", e.workflowID,
		"status", o.Status(),
		"outcome", o.String())
}

// List returns the status of every registered order sorted by order id.
// Orders whose negotiation cannot be read are skipped with a warning.
func (r *Registry) List(ctx context.Context) ([]StatusView, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.reserved {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *entry) int { return strings.Compare(a.order.ID, b.order.ID) })

	views := make([]StatusView, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := r.status(ctx, e)
		if err != nil {
			r.logger.Warn("Skipping order in listing", "order_id", e.order.ID, "error", err)
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// Await blocks up to timeout for the outcome of orderID. It returns
// negotiation.ErrOutcomeTimeout if the negotiation is still running.
func (r *Registry) Await(ctx context.Context, orderID string, timeout time.Duration) (domain.Outcome, error) {
	e, err := r.lookup(orderID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if o, ok := e.settled(); ok {
		return o, nil
	}
	o, err := e.handle.AwaitOutcome(ctx, timeout)
	if err != nil {
		return domain.Outcome{}, err
	}
	r.settle(ctx, e, o)
	return o, nil
}

// Restore loads persisted records and re-attaches to their negotiations.
// Finished orders are restored from the record alone. Unfinished orders the
// host no longer knows are skipped with a warning. It returns the number of
// orders restored.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	recs, err := r.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list order records: %w", err)
	}

	restored := 0
	for _, rec := range recs {
		r.mu.RLock()
		_, known := r.entries[rec.OrderID()]
		r.mu.RUnlock()
		if known {
			continue
		}

		e := &entry{
			order:       rec.Order,
			workflowID:  rec.WorkflowID,
			submittedAt: rec.SubmittedAt,
			quote:       rec.Quote,
			outcome:     rec.Outcome,
		}

		h, err := r.host.Attach(ctx, rec.OrderID(), rec.WorkflowID)
		switch {
		case err == nil:
			e.handle = h
		case rec.Outcome != nil:
			// Finished before the restart; served from the record.
		case errors.Is(err, negotiation.ErrUnknownNegotiation):
			r.logger.Warn("Negotiation no longer known to host",
				"order_id", rec.OrderID(),
				"workflow_id", rec.WorkflowID,
				"status", rec.Status)
			continue
		default:
			return restored, fmt.Errorf("failed to attach to order %s: %w", rec.OrderID(), err)
		}

		r.mu.Lock()
		if _, known := r.entries[rec.OrderID()]; !known {
			r.entries[rec.OrderID()] = e
			restored++
		}
		r.mu.Unlock()
	}

	r.mu.RLock()
	active := r.activeLocked()
	r.mu.RUnlock()
	r.observer.ActiveNegotiations(active)

	r.logger.Info("Registry restored", "records", len(recs), "restored", restored)
	return restored, nil
}

// persist writes the record for e with the status its cached state implies.
// Store failures are logged and do not affect the negotiation.
func (r *Registry) persist(ctx context.Context, e *entry) {
	e.mu.Lock()
	status := domain.StatusSubmitted
	switch {
	case e.outcome != nil:
		status = e.outcome.Status()
	case e.quote != nil:
		status = domain.StatusInProgress
	}
	rec := store.Record{
		Order:       e.order,
		WorkflowID:  e.workflowID,
		Status:      status,
		Quote:       e.quote,
		Outcome:     e.outcome,
		SubmittedAt: e.submittedAt,
		UpdatedAt:   r.clock.Now(),
	}
	e.mu.Unlock()

	if err := r.records.Save(ctx, rec); err != nil {
		r.logger.Warn("Failed to persist order record",
			"order_id", e.order.ID,
			"status", status,
			"error", err)
	}
}
