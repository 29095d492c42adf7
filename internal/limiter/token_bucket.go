package limiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// TokenBucketConfig parameterizes a TokenBucket.
type TokenBucketConfig struct {
	RefillRate float64 // tokens per second; zero disables refill
	Capacity   int
}

// Validate rejects a negative or non-finite refill rate and a non-positive
// capacity.
func (c TokenBucketConfig) Validate() error {
	if c.RefillRate < 0 || math.IsNaN(c.RefillRate) || math.IsInf(c.RefillRate, 0) {
		return fmt.Errorf("token bucket: %w, got %v", ErrInvalidRefillRate, c.RefillRate)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("token bucket: %w, got %d", ErrInvalidCapacity, c.Capacity)
	}
	return nil
}

// TokenBucketState is the per-key bucket. Tokens is fractional.
type TokenBucketState struct {
	Tokens     float64
	LastRefill time.Time
}

// TokenBucket admits a request when the key's bucket holds at least one
// token. Buckets start full and refill continuously at RefillRate up to
// Capacity, so a new key may burst Capacity requests at once. Partial tokens
// carry over between calls.
//
// With RefillRate 0 each key gets Capacity requests in total.
type TokenBucket struct {
	clock  clock.Clock
	cfg    TokenBucketConfig
	states *store.Store[TokenBucketState]
}

// NewTokenBucket creates a token bucket limiter. A nil clock means the real
// clock; a nil store means a private store with default options.
func NewTokenBucket(cfg TokenBucketConfig, c clock.Clock, st *store.Store[TokenBucketState]) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		st = store.New[TokenBucketState]()
	}
	return &TokenBucket{
		clock:  clockOrReal(c),
		cfg:    cfg,
		states: st,
	}, nil
}

func (tb *TokenBucket) Allow(_ context.Context, key string) Decision {
	now := tb.clock.Now()
	capacity := float64(tb.cfg.Capacity)

	var d Decision
	tb.states.Update(key, now, func(st *TokenBucketState, fresh bool) {
		if fresh {
			st.Tokens = capacity
			st.LastRefill = now
		}

		// A backward clock step yields no tokens and does not rewind
		// LastRefill, so the same interval is never credited twice.
		if elapsed := now.Sub(st.LastRefill); elapsed > 0 {
			st.Tokens = math.Min(capacity, st.Tokens+elapsed.Seconds()*tb.cfg.RefillRate)
			st.LastRefill = now
		}

		if st.Tokens >= 1 {
			st.Tokens--
			d = Decision{
				Allowed:   true,
				Remaining: int(math.Floor(st.Tokens)),
				Limit:     tb.cfg.Capacity,
				ResetAt:   tb.fullAt(st),
			}
			return
		}

		d = Decision{
			Allowed:   false,
			Remaining: 0,
			Limit:     tb.cfg.Capacity,
			ResetAt:   tb.fullAt(st),
			RetryAt:   tb.tokensAt(st, 1),
		}
	})
	return d
}

// fullAt is when the bucket will be full again; zero if it never will be.
func (tb *TokenBucket) fullAt(st *TokenBucketState) time.Time {
	return tb.tokensAt(st, float64(tb.cfg.Capacity))
}

// tokensAt is when the bucket will hold want tokens; zero if never.
func (tb *TokenBucket) tokensAt(st *TokenBucketState, want float64) time.Time {
	deficit := want - st.Tokens
	if deficit <= 0 {
		return st.LastRefill
	}
	if tb.cfg.RefillRate == 0 {
		return time.Time{}
	}
	return st.LastRefill.Add(durationFromSeconds(deficit / tb.cfg.RefillRate))
}

// Reset forgets key; its next request sees a full bucket.
func (tb *TokenBucket) Reset(key string) {
	tb.states.Delete(key)
}

// StartJanitor evicts idle keys in the background if the store has an idle TTL.
func (tb *TokenBucket) StartJanitor(ctx context.Context, interval time.Duration) {
	tb.states.StartJanitor(ctx, tb.clock, interval)
}

// State returns the stored bucket for key, without applying refill.
func (tb *TokenBucket) State(key string) (TokenBucketState, bool) {
	return tb.states.Peek(key)
}
