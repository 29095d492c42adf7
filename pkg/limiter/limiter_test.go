package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/throttle/pkg/clock"
)

func TestTokenBucketPublicAPI(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tb, err := New(Config{Algorithm: AlgorithmTokenBucket, RefillRate: 1, Capacity: 2}, vc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	d1 := tb.Allow(ctx, "user1")
	d2 := tb.Allow(ctx, "user1")
	d3 := tb.Allow(ctx, "user1")

	if !d1.Allowed || !d2.Allowed {
		t.Fatal("first two requests should be allowed")
	}
	if d3.Allowed {
		t.Fatal("third request should be denied")
	}

	vc.Advance(time.Second)
	if !tb.Allow(ctx, "user1").Allowed {
		t.Fatal("request after refill should be allowed")
	}
}

func TestFromConfigObserves(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var seen []bool
	rl, err := FromConfig(
		Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, MaxRequests: 1},
		vc,
		[]StoreOption{WithShards(2), WithIdleTTL(time.Hour)},
		WithObserver(ObserverFunc(func(_ context.Context, _ string, d Decision) {
			seen = append(seen, d.Allowed)
		})),
	)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}

	rl.Allow(context.Background(), "k")
	rl.Allow(context.Background(), "k")

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("observed %v, want [true false]", seen)
	}
}

func TestConfigErrors(t *testing.T) {
	_, err := New(Config{Algorithm: AlgorithmSlidingWindow, Window: time.Minute}, nil)
	if !errors.Is(err, ErrInvalidMaxRequests) {
		t.Fatalf("err = %v, want ErrInvalidMaxRequests", err)
	}
	if _, err := ParseAlgorithm("leaky"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("err = %v, want ErrUnknownAlgorithm", err)
	}
	if a, err := ParseAlgorithm("Sliding-Window"); err != nil || a != AlgorithmSlidingWindow {
		t.Fatalf("ParseAlgorithm = %q, %v", a, err)
	}
}
