// Package limiter implements per-key admission control.
//
// Three strategies share the Limiter interface: FixedWindow, SlidingWindow
// and TokenBucket. Each keeps its per-key state in a store.Store and reads
// time only through a clock.Clock. RateLimiter wraps one strategy chosen at
// construction.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// Algorithm identifies a rate limiting strategy.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmTokenBucket}

// Configuration errors. Constructors wrap them; test with errors.Is.
var (
	ErrInvalidWindow      = errors.New("throttle: window must be positive")
	ErrInvalidMaxRequests = errors.New("throttle: max requests must be positive")
	ErrInvalidRefillRate  = errors.New("throttle: refill rate must be a finite non-negative number")
	ErrInvalidCapacity    = errors.New("throttle: capacity must be positive")
	ErrUnknownAlgorithm   = errors.New("throttle: unknown algorithm")
	ErrNilStrategy        = errors.New("throttle: strategy is required")
)

// Limiter decides whether a request identified by key may proceed.
// Allow never blocks and never fails; ctx is accepted so callers can pass
// their request context through, and is not consulted.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Resetter is implemented by limiters that can forget a key's state.
type Resetter interface {
	Reset(key string)
}

// Janitor is implemented by limiters whose store can evict idle keys.
type Janitor interface {
	StartJanitor(ctx context.Context, interval time.Duration)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`          // requests still admissible right now
	Limit     int       `json:"limit"`              // max requests per window, or bucket capacity
	ResetAt   time.Time `json:"reset_at"`           // when the key's budget is fully restored
	RetryAt   time.Time `json:"retry_at,omitempty"` // earliest useful retry when denied; zero if never
}

// Config selects one strategy and carries its parameters. Only the fields
// the chosen algorithm uses are validated.
type Config struct {
	Algorithm   Algorithm     `json:"algorithm" yaml:"algorithm"`
	Window      time.Duration `json:"window" yaml:"window"`             // fixed and sliding window
	MaxRequests int           `json:"max_requests" yaml:"max_requests"` // fixed and sliding window
	RefillRate  float64       `json:"refill_rate" yaml:"refill_rate"`   // token bucket, tokens per second
	Capacity    int           `json:"capacity" yaml:"capacity"`         // token bucket
}

// Validate checks the fields used by c.Algorithm.
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmFixedWindow:
		return FixedWindowConfig{Window: c.Window, MaxRequests: c.MaxRequests}.Validate()
	case AlgorithmSlidingWindow:
		return SlidingWindowConfig{Window: c.Window, MaxRequests: c.MaxRequests}.Validate()
	case AlgorithmTokenBucket:
		return TokenBucketConfig{RefillRate: c.RefillRate, Capacity: c.Capacity}.Validate()
	default:
		return fmt.Errorf("%w %q, must be one of: %s", ErrUnknownAlgorithm, c.Algorithm, algorithmList())
	}
}

// ParseAlgorithm accepts an algorithm name, case-insensitively, with either
// '-' or '_' as separator.
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, a := range Algorithms {
		if a == norm {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w %q, must be one of: %s", ErrUnknownAlgorithm, s, algorithmList())
}

func algorithmList() string {
	names := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// New builds the strategy selected by cfg. Store options apply to the
// strategy's private state store.
func New(cfg Config, clk clock.Clock, opts ...store.Option) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		lim Limiter
		err error
	)
	switch cfg.Algorithm {
	case AlgorithmFixedWindow:
		lim, err = NewFixedWindow(FixedWindowConfig{Window: cfg.Window, MaxRequests: cfg.MaxRequests}, clk, store.New[FixedWindowState](opts...))
	case AlgorithmSlidingWindow:
		lim, err = NewSlidingWindow(SlidingWindowConfig{Window: cfg.Window, MaxRequests: cfg.MaxRequests}, clk, store.New[SlidingWindowState](opts...))
	default:
		lim, err = NewTokenBucket(TokenBucketConfig{RefillRate: cfg.RefillRate, Capacity: cfg.Capacity}, clk, store.New[TokenBucketState](opts...))
	}
	if err != nil {
		return nil, err
	}
	return lim, nil
}

// durationFromSeconds converts fractional seconds to a Duration, rounding up
// so a computed retry time is never early.
func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(s * float64(time.Second)))
}

func clockOrReal(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.NewRealClock()
	}
	return c
}
