package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "rfq:"

// RedisOption configures the Redis-backed stores.
type RedisOption func(*redisBase)

// WithPrefix sets the key prefix shared by all keys of a store.
func WithPrefix(prefix string) RedisOption {
	return func(b *redisBase) { b.prefix = prefix }
}

// WithTTL expires records and bookings after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *redisBase) { b.ttl = ttl }
}

type redisBase struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

func newRedisBase(client *backend.Client, opts []RedisOption) redisBase {
	b := redisBase{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// NewRedisClient builds a go-redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*backend.Client, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisRecordStore implements RecordStore on Redis: one JSON value per order
// plus a set indexing all order ids.
type RedisRecordStore struct {
	redisBase
}

// NewRedisRecordStore creates a record store on client.
func NewRedisRecordStore(client *backend.Client, opts ...RedisOption) *RedisRecordStore {
	return &RedisRecordStore{redisBase: newRedisBase(client, opts)}
}

func (s *RedisRecordStore) key(orderID string) string { return s.prefix + "order:" + orderID }
func (s *RedisRecordStore) indexKey() string          { return s.prefix + "order:index" }

// Save implements RecordStore.
func (s *RedisRecordStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(rec.OrderID()), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), rec.OrderID())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.OrderID(), err)
	}
	return nil
}

// Load implements RecordStore.
func (s *RedisRecordStore) Load(ctx context.Context, orderID string) (Record, error) {
	val, err := s.client.Get(ctx, s.key(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("failed to load record %s: %w", orderID, err)
	}

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record %s: %w", orderID, err)
	}
	return rec, nil
}

// List implements RecordStore. Index entries whose record expired are pruned.
func (s *RedisRecordStore) List(ctx context.Context) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read record index: %w", err)
	}
	slices.Sort(ids)

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.OrderID(), b.OrderID()) })
	return out, nil
}

// RedisBookingLedger implements BookingLedger with SET NX on a per-run key so
// a retried booking activity never writes a second entry. The order key holds
// the latest booking.
type RedisBookingLedger struct {
	redisBase
}

// NewRedisBookingLedger creates a ledger on client.
func NewRedisBookingLedger(client *backend.Client, opts ...RedisOption) *RedisBookingLedger {
	return &RedisBookingLedger{redisBase: newRedisBase(client, opts)}
}

func (l *RedisBookingLedger) key(orderID string) string { return l.prefix + "booking:" + orderID }
func (l *RedisBookingLedger) runKey(b Booking) string {
	return l.prefix + "booking:run:" + runKey(b.OrderID, b.RunID)
}

// Book implements BookingLedger.
func (l *RedisBookingLedger) Book(ctx context.Context, b Booking) (Booking, bool, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return Booking{}, false, fmt.Errorf("failed to marshal booking: %w", err)
	}

	runKey := l.runKey(b)
	created, err := l.client.SetNX(ctx, runKey, data, l.ttl).Result()
	if err != nil {
		return Booking{}, false, fmt.Errorf("failed to book order %s: %w", b.OrderID, err)
	}
	if created {
		if err := l.client.Set(ctx, l.key(b.OrderID), data, l.ttl).Err(); err != nil {
			return Booking{}, false, fmt.Errorf("failed to index booking %s: %w", b.OrderID, err)
		}
		return b, true, nil
	}

	val, err := l.client.Get(ctx, runKey).Bytes()
	if err != nil {
		return Booking{}, false, fmt.Errorf("failed to read booking %s: %w", b.OrderID, err)
	}
	var existing Booking
	if err := json.Unmarshal(val, &existing); err != nil {
		return Booking{}, false, fmt.Errorf("failed to unmarshal booking %s: %w", b.OrderID, err)
	}
	return existing, false, nil
}

// Get implements BookingLedger.
func (l *RedisBookingLedger) Get(ctx context.Context, orderID string) (Booking, error) {
	val, err := l.client.Get(ctx, l.key(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, fmt.Errorf("failed to read booking %s: %w", orderID, err)
	}

	var b Booking
	if err := json.Unmarshal(val, &b); err != nil {
		return Booking{}, fmt.Errorf("failed to unmarshal booking %s: %w", orderID, err)
	}
	return b, nil
}
