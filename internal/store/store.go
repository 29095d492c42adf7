// Package store holds per-key limiter state.
//
// A Store maps keys to a strategy's private state type. Keys are spread over
// shards by xxhash; a shard lock guards only lookup and insert-if-absent,
// while each key has its own mutex for read-modify-write. Calls for
// different keys therefore never wait on each other's state updates.
//
// Entries live until removed. Without WithIdleTTL a Store grows with the
// number of distinct keys it has seen.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
)

// DefaultShards is the shard count used when WithShards is not given.
const DefaultShards = 64

// Store is a concurrency-safe map from key to state S.
type Store[S any] struct {
	shards  []shard[S]
	idleTTL time.Duration
}

type shard[S any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[S]
}

type entry[S any] struct {
	mu          sync.Mutex
	state       S
	initialized bool
	removed     bool
	lastSeen    time.Time
}

type options struct {
	shards  int
	idleTTL time.Duration
}

// Option configures a Store.
type Option func(*options)

// WithShards sets the number of shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithIdleTTL enables eviction of keys not updated for d. Eviction happens
// only in Sweep, which StartJanitor runs periodically. A key must be idle
// long enough that forgetting it cannot change a decision: at least the
// window for window strategies, at least capacity/refillRate for a token
// bucket.
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTTL = d
		}
	}
}

// New creates an empty Store.
func New[S any](opts ...Option) *Store[S] {
	o := options{shards: DefaultShards}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[S]{
		shards:  make([]shard[S], o.shards),
		idleTTL: o.idleTTL,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry[S])
	}
	return s
}

func (s *Store[S]) shardFor(key string) *shard[S] {
	return &s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// lookup returns the entry for key, inserting an empty one if absent.
func (s *Store[S]) lookup(key string) *entry[S] {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok = sh.entries[key]; ok {
		return e
	}
	e = &entry[S]{}
	sh.entries[key] = e
	return e
}

// Update runs fn on the state of key while holding the key's lock. fresh is
// true on the first call ever made for the key (or the first after it was
// evicted); state is then the zero value of S. now is recorded as the key's
// last activity and never moves it backward.
func (s *Store[S]) Update(key string, now time.Time, fn func(state *S, fresh bool)) {
	for {
		e := s.lookup(key)
		e.mu.Lock()
		if e.removed {
			// Evicted between lookup and lock; the shard now holds a new entry.
			e.mu.Unlock()
			continue
		}

		fn(&e.state, !e.initialized)
		e.initialized = true
		if now.After(e.lastSeen) {
			e.lastSeen = now
		}
		e.mu.Unlock()
		return
	}
}

// Peek returns a copy of the state for key. The copy is shallow: slices in
// S still alias the stored state and must not be modified.
func (s *Store[S]) Peek(key string) (S, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()

	var zero S
	if !ok {
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !e.initialized {
		return zero, false
	}
	return e.state, true
}

// Delete forgets key. The next Update for it sees fresh state.
func (s *Store[S]) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(sh.entries, key)
}

// Len returns the number of tracked keys.
func (s *Store[S]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// IdleTTL returns the configured idle eviction age, zero when disabled.
func (s *Store[S]) IdleTTL() time.Duration {
	return s.idleTTL
}

// Sweep evicts keys idle for at least the idle TTL as of now and returns how
// many were removed. It is a no-op when no idle TTL is configured.
func (s *Store[S]) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}

	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			e.mu.Lock()
			if now.Sub(e.lastSeen) >= s.idleTTL {
				e.removed = true
				delete(sh.entries, key)
				removed++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done. It returns at once
// if the store has no idle TTL or interval is not positive.
func (s *Store[S]) StartJanitor(ctx context.Context, clk clock.Clock, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(clk.Now()); n > 0 {
					log.WithField("evicted", n).Debug("store: swept idle keys")
				}
			}
		}
	}()
}
