package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryRecordStore keeps records in process memory.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

// Save implements RecordStore.
func (m *MemoryRecordStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	m.records[rec.OrderID()] = rec
	m.mu.Unlock()
	return nil
}

// Load implements RecordStore.
func (m *MemoryRecordStore) Load(_ context.Context, orderID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[orderID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// List implements RecordStore. Records are ordered by order id.
func (m *MemoryRecordStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.OrderID(), b.OrderID()) })
	return out, nil
}

// MemoryBookingLedger keeps bookings in process memory.
type MemoryBookingLedger struct {
	mu       sync.Mutex
	bookings map[string]Booking // by run
	latest   map[string]Booking // by order id
}

// NewMemoryBookingLedger creates an empty in-memory ledger.
func NewMemoryBookingLedger() *MemoryBookingLedger {
	return &MemoryBookingLedger{
		bookings: make(map[string]Booking),
		latest:   make(map[string]Booking),
	}
}

// Book implements BookingLedger.
func (m *MemoryBookingLedger) Book(_ context.Context, b Booking) (Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := runKey(b.OrderID, b.RunID)
	if existing, ok := m.bookings[key]; ok {
		return existing, false, nil
	}
	m.bookings[key] = b
	m.latest[b.OrderID] = b
	return b, true, nil
}

// Get implements BookingLedger.
func (m *MemoryBookingLedger) Get(_ context.Context, orderID string) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.latest[orderID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return b, nil
}

func runKey(orderID, runID string) string { return orderID + "/" + runID }
