// Package stats counts rate limit decisions.
//
// A Sink is a limiter.Observer; attach it with limiter.WithObserver. Sinks
// never influence admission: recording failures are logged and dropped.
package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

// Counters holds allowed and denied totals.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// Snapshot is a point-in-time view of a sink.
type Snapshot struct {
	Total Counters            `json:"total"`
	ByKey map[string]Counters `json:"by_key,omitempty"`
}

// TopDenied returns up to n keys with the most denials, most denied first.
func (s Snapshot) TopDenied(n int) []string {
	keys := make([]string, 0, len(s.ByKey))
	for k, c := range s.ByKey {
		if c.Denied > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := s.ByKey[keys[i]].Denied, s.ByKey[keys[j]].Denied
		if di != dj {
			return di > dj
		}
		return keys[i] < keys[j]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Sink records decisions and reports totals.
type Sink interface {
	limiter.Observer
	Snapshot(ctx context.Context) (Snapshot, error)
}

// MemorySink keeps counters in process memory. It never expires anything.
type MemorySink struct {
	mu        sync.Mutex
	total     Counters
	byKey     map[string]Counters
	trackKeys bool
}

// NewMemorySink creates an in-memory sink. With trackKeys it also counts
// per key.
func NewMemorySink(trackKeys bool) *MemorySink {
	return &MemorySink{
		byKey:     make(map[string]Counters),
		trackKeys: trackKeys,
	}
}

func (s *MemorySink) Observe(_ context.Context, key string, d limiter.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(d.Allowed)
	if s.trackKeys {
		c := s.byKey[key]
		c.add(d.Allowed)
		s.byKey[key] = c
	}
}

func (s *MemorySink) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Total: s.total}
	if s.trackKeys {
		snap.ByKey = make(map[string]Counters, len(s.byKey))
		for k, v := range s.byKey {
			snap.ByKey[k] = v
		}
	}
	return snap, nil
}
