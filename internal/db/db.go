package db

import (
	"context"
	"time"
)

// Store is the cache backend facade. Consumers depend on the narrow
// sub-interfaces (ISP).
type Store interface {
	Pinger
	KVStore
	MultiKVStore
	CounterStore
	Close()
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KVItem is a single key+value pair for pipelined writes.
type KVItem struct {
	Key   string
	Value []byte
}

// MultiKVStore provides batched key-value operations in one round-trip.
type MultiKVStore interface {
	// GetMulti returns values in key order; a missing key yields nil.
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	// SetMulti stores items, each with ttl (0 = no expiry).
	SetMulti(ctx context.Context, items []KVItem, ttl time.Duration) error
}

// CounterStore provides integer counters with expiry.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire sets ttl on key; with nx it only applies when the key has no expiry yet.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
