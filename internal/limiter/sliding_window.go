package limiter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// SlidingWindowConfig parameterizes a SlidingWindow.
type SlidingWindowConfig struct {
	Window      time.Duration
	MaxRequests int
}

// Validate reports a non-positive window or request count.
func (c SlidingWindowConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("sliding window: %w, got %s", ErrInvalidWindow, c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("sliding window: %w, got %d", ErrInvalidMaxRequests, c.MaxRequests)
	}
	return nil
}

// SlidingWindowState is the per-key log of admitted request times, oldest
// first.
type SlidingWindowState struct {
	Log []time.Time
}

// SlidingWindow implements the sliding window log algorithm: a request at
// time t is admitted when fewer than MaxRequests admitted requests fall in
// [t-Window, t]. Any closed interval of length Window therefore contains at
// most MaxRequests admissions per key.
//
// Memory per key is O(MaxRequests). Expired entries are trimmed on every
// call, so a key's log never outgrows its limit.
type SlidingWindow struct {
	clock  clock.Clock
	cfg    SlidingWindowConfig
	states *store.Store[SlidingWindowState]
}

// NewSlidingWindow creates a sliding window log limiter. A nil clock means
// the real clock; a nil store means a private store with default options.
func NewSlidingWindow(cfg SlidingWindowConfig, c clock.Clock, st *store.Store[SlidingWindowState]) (*SlidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		st = store.New[SlidingWindowState]()
	}
	return &SlidingWindow{
		clock:  clockOrReal(c),
		cfg:    cfg,
		states: st,
	}, nil
}

func (sw *SlidingWindow) Allow(_ context.Context, key string) Decision {
	clockNow := sw.clock.Now()

	var d Decision
	sw.states.Update(key, clockNow, func(st *SlidingWindowState, _ bool) {
		now := clockNow
		if n := len(st.Log); n > 0 && now.Before(st.Log[n-1]) {
			// Keep the log ordered when the clock steps backward.
			now = st.Log[n-1]
		}
		windowStart := now.Add(-sw.cfg.Window)

		// The log is ordered, so expired entries form a prefix.
		expired := sort.Search(len(st.Log), func(i int) bool {
			return !st.Log[i].Before(windowStart)
		})
		st.Log = st.Log[expired:]
		if len(st.Log) == 0 {
			st.Log = nil
		}

		count := len(st.Log)
		if count < sw.cfg.MaxRequests {
			st.Log = append(st.Log, now)
			d = Decision{
				Allowed:   true,
				Remaining: sw.cfg.MaxRequests - count - 1,
				Limit:     sw.cfg.MaxRequests,
				ResetAt:   sw.expiry(st.Log[len(st.Log)-1]),
			}
			return
		}

		d = Decision{
			Allowed:   false,
			Remaining: 0,
			Limit:     sw.cfg.MaxRequests,
			ResetAt:   sw.expiry(st.Log[count-1]),
			RetryAt:   sw.expiry(st.Log[0]),
		}
	})
	return d
}

// expiry is the first instant at which an entry logged at ts no longer
// counts: entries exactly Window old are still inside the window.
func (sw *SlidingWindow) expiry(ts time.Time) time.Time {
	return ts.Add(sw.cfg.Window + time.Nanosecond)
}

// Reset forgets key.
func (sw *SlidingWindow) Reset(key string) {
	sw.states.Delete(key)
}

// StartJanitor evicts idle keys in the background if the store has an idle TTL.
func (sw *SlidingWindow) StartJanitor(ctx context.Context, interval time.Duration) {
	sw.states.StartJanitor(ctx, sw.clock, interval)
}

// State returns a copy of the stored log for key.
func (sw *SlidingWindow) State(key string) (SlidingWindowState, bool) {
	st, ok := sw.states.Peek(key)
	st.Log = append([]time.Time(nil), st.Log...)
	return st, ok
}
