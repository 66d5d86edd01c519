package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rfq/internal/domain"
	"github.com/ahrav/go-rfq/internal/store"
	"github.com/ahrav/go-rfq/internal/venue"
	"github.com/ahrav/go-rfq/pkg/activity"
	"github.com/ahrav/go-rfq/pkg/events"
)

// capturingEventSink records emitted envelopes for assertions.
type capturingEventSink struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (c *capturingEventSink) Append(_ context.Context, envelope events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, envelope)
	return nil
}

func (c *capturingEventSink) ofType(t domain.EventType) []events.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Envelope
	for _, e := range c.events {
		if e.Type == string(t) {
			out = append(out, e)
		}
	}
	return out
}

type observation struct {
	name    string
	success bool
}

type recordingRecorder struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingRecorder) ObserveActivity(name string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{name: name, success: success})
}

type failingVenue struct{}

func (failingVenue) Execute(context.Context, domain.Order, domain.Quote) (venue.Fill, error) {
	return venue.Fill{}, errors.New("venue rejected connection")
}

type failingLedger struct{}

func (failingLedger) Book(context.Context, store.Booking) (store.Booking, bool, error) {
	return store.Booking{}, false, errors.New("connection refused")
}

func (failingLedger) Get(context.Context, string) (store.Booking, error) {
	return store.Booking{}, store.ErrBookingNotFound
}

type fixture struct {
	acts     *Activities
	sink     *capturingEventSink
	clock    *clock.Mock
	ledger   *store.MemoryBookingLedger
	recorder *recordingRecorder
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	f := fixture{
		sink:     &capturingEventSink{},
		clock:    clock.NewMock(),
		ledger:   store.NewMemoryBookingLedger(),
		recorder: &recordingRecorder{},
	}
	f.clock.Add(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC).Sub(f.clock.Now()))
	base := activity.NewBaseActivities(f.sink, f.clock)
	f.acts = NewActivities(base, f.ledger, append([]Option{WithRecorder(f.recorder)}, opts...)...)
	return f
}

func sampleOrder() domain.Order {
	return domain.Order{ID: "O1", ProductType: "Equity Swap", Quantity: 10, Client: "Acme"}
}

func decodeStep(t *testing.T, env events.Envelope) domain.StepPayload {
	t.Helper()
	var p domain.StepPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}
