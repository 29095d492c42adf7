package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

func newFixed(t testing.TB, window time.Duration, limit int, c clock.Clock) *FixedWindow {
	t.Helper()
	fw, err := NewFixedWindow(FixedWindowConfig{Window: window, MaxRequests: limit}, c, nil)
	if err != nil {
		t.Fatalf("NewFixedWindow() error: %v", err)
	}
	return fw
}

func newSliding(t testing.TB, window time.Duration, limit int, c clock.Clock) *SlidingWindow {
	t.Helper()
	sw, err := NewSlidingWindow(SlidingWindowConfig{Window: window, MaxRequests: limit}, c, nil)
	if err != nil {
		t.Fatalf("NewSlidingWindow() error: %v", err)
	}
	return sw
}

func newBucket(t testing.TB, rate float64, capacity int, c clock.Clock) *TokenBucket {
	t.Helper()
	tb, err := NewTokenBucket(TokenBucketConfig{RefillRate: rate, Capacity: capacity}, c, nil)
	if err != nil {
		t.Fatalf("NewTokenBucket() error: %v", err)
	}
	return tb
}

// allowN calls lim n times for key and returns the decisions.
func allowN(lim Limiter, key string, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = lim.Allow(ctx, key).Allowed
	}
	return out
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
