// Package memory is an in-process db.Store backed by a bounded LRU.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/trialfit/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// DefaultSize is the entry limit when none is configured.
const DefaultSize = 10000

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

// Store keeps at most size entries, evicting the least recently used.
// Expired entries are dropped lazily on read.
type Store struct {
	cache *lru.Cache[string, entry]
	now   func() time.Time
	mu    sync.Mutex // serializes read-modify-write counters
}

// NewStore creates a store holding up to size entries.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Store{cache: c, now: time.Now}, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close drops every entry.
func (s *Store) Close() { s.cache.Purge() }

// Len returns the number of cached entries, including expired ones not yet read.
func (s *Store) Len() int { return s.cache.Len() }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.cache.Remove(key)
		return nil, db.ErrKeyNotFound
	}
	return e.value, nil
}

// Set stores a value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, entry{value: clone(value)})
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Add(key, s.entry(value, ttl))
	return nil
}

// GetMulti returns values in key order; missing keys yield nil.
func (s *Store) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, err := s.Get(ctx, k); err == nil {
			out[i] = v
		}
	}
	return out, nil
}

// SetMulti stores every item with the same ttl.
func (s *Store) SetMulti(_ context.Context, items []db.KVItem, ttl time.Duration) error {
	for _, it := range items {
		s.cache.Add(it.Key, s.entry(it.Value, ttl))
	}
	return nil
}

// IncrBy adds val to the decimal counter at key, keeping its expiry.
func (s *Store) IncrBy(_ context.Context, key string, val int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur int64
	e, ok := s.cache.Get(key)
	if ok && (e.expiresAt.IsZero() || s.now().Before(e.expiresAt)) {
		n, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return &db.Error{Op: db.OpIncrBy, Err: fmt.Errorf("key %s is not an integer", key)}
		}
		cur = n
	} else {
		e = entry{}
	}
	e.value = strconv.AppendInt(nil, cur+val, 10)
	s.cache.Add(key, e)
	return nil
}

// Expire sets ttl on an existing key. With nx it keeps an expiry already set.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Peek(key)
	if !ok || (nx && !e.expiresAt.IsZero()) {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.cache.Add(key, e)
	return nil
}

func (s *Store) entry(value []byte, ttl time.Duration) entry {
	e := entry{value: clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
