package limiter

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// FixedWindowConfig parameterizes a FixedWindow.
type FixedWindowConfig struct {
	Window      time.Duration
	MaxRequests int
}

// Validate reports a non-positive window or request count.
func (c FixedWindowConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("fixed window: %w, got %s", ErrInvalidWindow, c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("fixed window: %w, got %d", ErrInvalidMaxRequests, c.MaxRequests)
	}
	return nil
}

// FixedWindowState is the per-key record of a FixedWindow.
type FixedWindowState struct {
	Count       int
	WindowStart time.Time
}

// FixedWindow admits up to MaxRequests per key in each window. Windows are
// aligned to absolute time (multiples of Window since the Unix epoch), not to
// a key's first request.
//
// Because windows are aligned, a burst at the end of one window followed by
// a burst at the start of the next admits up to 2*MaxRequests within less
// than one window. That is inherent to the algorithm.
type FixedWindow struct {
	clock  clock.Clock
	cfg    FixedWindowConfig
	states *store.Store[FixedWindowState]
}

// NewFixedWindow creates a fixed window limiter. A nil clock means the real
// clock; a nil store means a private store with default options.
func NewFixedWindow(cfg FixedWindowConfig, c clock.Clock, st *store.Store[FixedWindowState]) (*FixedWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		st = store.New[FixedWindowState]()
	}
	return &FixedWindow{
		clock:  clockOrReal(c),
		cfg:    cfg,
		states: st,
	}, nil
}

// windowStart returns the start of the window containing t. Windows are
// aligned to multiples of Window since the Unix epoch. The offset is
// computed from seconds and nanoseconds separately so times outside the
// int64 nanosecond range still align.
func (fw *FixedWindow) windowStart(t time.Time) time.Time {
	w := int64(fw.cfg.Window)
	secRem := t.Unix() % w
	if secRem < 0 {
		secRem += w
	}
	hi, lo := bits.Mul64(uint64(secRem), uint64(int64(time.Second)%w))
	off := (bits.Rem64(hi, lo, uint64(w)) + uint64(t.Nanosecond())) % uint64(w)
	return t.Add(-time.Duration(off)).UTC().Round(0)
}

func (fw *FixedWindow) Allow(_ context.Context, key string) Decision {
	now := fw.clock.Now()
	current := fw.windowStart(now)

	var d Decision
	fw.states.Update(key, now, func(st *FixedWindowState, fresh bool) {
		if fresh {
			st.WindowStart = current
		}

		start := current
		if start.Before(st.WindowStart) {
			// Clock went backward into an earlier window; stay in the
			// recorded one rather than granting a fresh budget.
			start = st.WindowStart
		}
		resetAt := start.Add(fw.cfg.Window)

		switch {
		case !start.Equal(st.WindowStart):
			st.Count = 1
			st.WindowStart = start
		case st.Count < fw.cfg.MaxRequests:
			st.Count++
		default:
			d = Decision{
				Allowed:   false,
				Remaining: 0,
				Limit:     fw.cfg.MaxRequests,
				ResetAt:   resetAt,
				RetryAt:   resetAt,
			}
			return
		}

		d = Decision{
			Allowed:   true,
			Remaining: fw.cfg.MaxRequests - st.Count,
			Limit:     fw.cfg.MaxRequests,
			ResetAt:   resetAt,
		}
	})
	return d
}

// Reset forgets key.
func (fw *FixedWindow) Reset(key string) {
	fw.states.Delete(key)
}

// StartJanitor evicts idle keys in the background if the store has an idle TTL.
func (fw *FixedWindow) StartJanitor(ctx context.Context, interval time.Duration) {
	fw.states.StartJanitor(ctx, fw.clock, interval)
}

// State returns the stored state for key.
func (fw *FixedWindow) State(key string) (FixedWindowState, bool) {
	return fw.states.Peek(key)
}
