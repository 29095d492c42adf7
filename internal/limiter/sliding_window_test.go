package limiter

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
)

func TestSlidingWindow_BasicAllow(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 5, vc)

	d := sw.Allow(ctx, "user1")
	if !d.Allowed {
		t.Error("first request should be allowed")
	}
	if d.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", d.Remaining)
	}
	if d.Limit != 5 {
		t.Errorf("Limit = %d, want 5", d.Limit)
	}
}

func TestSlidingWindow_NPlusOne(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 3, vc)

	got := allowN(sw, "user1", 4)
	want := []bool{true, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: allowed = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestSlidingWindow_NoBoundaryDoubling(t *testing.T) {
	const n = 5
	vc := clock.NewVirtualClock(epoch.Add(59 * time.Second))
	sw := newSliding(t, time.Minute, n, vc)

	before := countTrue(allowN(sw, "user1", n))
	vc.Advance(2 * time.Second)
	after := countTrue(allowN(sw, "user1", n))

	if before != n || after != 0 {
		t.Errorf("admitted %d then %d, want %d then 0", before, after, n)
	}
}

func TestSlidingWindow_GradualExpiry(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 3, vc)

	// Requests at t=0s, 20s, 40s.
	for i := 0; i < 3; i++ {
		if !sw.Allow(ctx, "user1").Allowed {
			t.Fatalf("request at %ds should be allowed", i*20)
		}
		vc.Advance(20 * time.Second)
	}

	// t=60s: the t=0 entry is exactly one window old and still counts.
	if sw.Allow(ctx, "user1").Allowed {
		t.Error("entry exactly one window old should still count")
	}

	// t=60s+1ns: it has expired.
	vc.Advance(time.Nanosecond)
	if !sw.Allow(ctx, "user1").Allowed {
		t.Error("should be allowed once the oldest entry expires")
	}
	if sw.Allow(ctx, "user1").Allowed {
		t.Error("window is full again")
	}
}

func TestSlidingWindow_RetryAt(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 2, vc)

	sw.Allow(ctx, "user1")
	vc.Advance(10 * time.Second)
	sw.Allow(ctx, "user1")

	d := sw.Allow(ctx, "user1")
	if d.Allowed {
		t.Fatal("should be denied")
	}
	wantRetry := epoch.Add(time.Minute + time.Nanosecond)
	if !d.RetryAt.Equal(wantRetry) {
		t.Errorf("RetryAt = %v, want %v", d.RetryAt, wantRetry)
	}
	wantReset := epoch.Add(70*time.Second + time.Nanosecond)
	if !d.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, wantReset)
	}

	vc.Set(d.RetryAt)
	if !sw.Allow(ctx, "user1").Allowed {
		t.Error("should be allowed at RetryAt")
	}
}

func TestSlidingWindow_SameInstantRequestsAllCount(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Second, 3, vc)

	if got := countTrue(allowN(sw, "user1", 10)); got != 3 {
		t.Errorf("admitted %d simultaneous requests, want 3", got)
	}
	st, _ := sw.State("user1")
	if len(st.Log) != 3 {
		t.Errorf("log length = %d, want 3", len(st.Log))
	}
}

func TestSlidingWindow_LogIsPrunedEveryCall(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Second, 100, vc)

	allowN(sw, "user1", 50)
	vc.Advance(2 * time.Second)
	sw.Allow(ctx, "user1")

	st, _ := sw.State("user1")
	if len(st.Log) != 1 {
		t.Errorf("log length = %d, want 1 after expiry", len(st.Log))
	}
}

func TestSlidingWindow_DenialDoesNotGrowLog(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 2, vc)

	allowN(sw, "user1", 2)
	for i := 0; i < 5; i++ {
		if sw.Allow(ctx, "user1").Allowed {
			t.Fatal("should be denied")
		}
	}
	st, _ := sw.State("user1")
	if len(st.Log) != 2 {
		t.Errorf("log length = %d, want 2", len(st.Log))
	}
}

func TestSlidingWindow_ClockBackwardKeepsLogOrdered(t *testing.T) {
	vc := clock.NewVirtualClock(epoch.Add(time.Minute))
	sw := newSliding(t, time.Minute, 3, vc)

	sw.Allow(ctx, "user1")
	vc.Rewind(45 * time.Second)
	sw.Allow(ctx, "user1")

	st, _ := sw.State("user1")
	for i := 1; i < len(st.Log); i++ {
		if st.Log[i].Before(st.Log[i-1]) {
			t.Fatalf("log out of order: %v", st.Log)
		}
	}

	// Going back did not free any capacity.
	vc.Rewind(time.Hour)
	if got := countTrue(allowN(sw, "user1", 5)); got != 1 {
		t.Errorf("admitted %d after rewinding, want 1", got)
	}
}

func TestSlidingWindow_SeparateKeys(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	sw := newSliding(t, time.Minute, 1, vc)

	sw.Allow(ctx, "user1")
	if sw.Allow(ctx, "user1").Allowed {
		t.Error("user1 should be denied")
	}
	if !sw.Allow(ctx, "user2").Allowed {
		t.Error("user2 should be allowed")
	}
}

// For random arrival patterns, no closed interval of one window length may
// contain more than MaxRequests admissions.
func TestSlidingWindow_RollingWindowProperty(t *testing.T) {
	const window = time.Second
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		limit := 1 + rng.Intn(8)
		calls := limit + 1 + rng.Intn(60)

		vc := clock.NewVirtualClock(epoch)
		sw := newSliding(t, window, limit, vc)

		var admitted []time.Time
		for i := 0; i < calls; i++ {
			// Mix of simultaneous, sub-window and boundary-exact gaps.
			switch rng.Intn(4) {
			case 0:
			case 1:
				vc.Advance(window)
			default:
				vc.Advance(time.Duration(rng.Int63n(int64(window))))
			}
			if sw.Allow(ctx, "k").Allowed {
				admitted = append(admitted, vc.Now())
			}
		}

		for i, start := range admitted {
			end := start.Add(window)
			n := 0
			for _, ts := range admitted[i:] {
				if ts.After(end) {
					break
				}
				n++
			}
			if n > limit {
				t.Fatalf("trial %d: %d admissions in [%v, %v], limit %d", trial, n, start, end, limit)
			}
		}
	}
}

func TestSlidingWindow_InvalidConfig(t *testing.T) {
	if _, err := NewSlidingWindow(SlidingWindowConfig{Window: 0, MaxRequests: 1}, nil, nil); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("zero window: error = %v", err)
	}
	if _, err := NewSlidingWindow(SlidingWindowConfig{Window: time.Second, MaxRequests: 0}, nil, nil); !errors.Is(err, ErrInvalidMaxRequests) {
		t.Errorf("zero limit: error = %v", err)
	}
}

func TestSlidingWindow_ImplementsInterfaces(t *testing.T) {
	var _ Limiter = &SlidingWindow{}
	var _ Resetter = &SlidingWindow{}
	var _ Janitor = &SlidingWindow{}
}
