// Package limiter is the public API of the throttle rate limiters.
package limiter

import (
	"time"

	log "github.com/sirupsen/logrus"

	internallimiter "github.com/SmitUplenchwar2687/throttle/internal/limiter"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
	"github.com/SmitUplenchwar2687/throttle/pkg/clock"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm = internallimiter.Algorithm

const (
	AlgorithmFixedWindow   = internallimiter.AlgorithmFixedWindow
	AlgorithmSlidingWindow = internallimiter.AlgorithmSlidingWindow
	AlgorithmTokenBucket   = internallimiter.AlgorithmTokenBucket
)

// Configuration errors, usable with errors.Is.
var (
	ErrInvalidWindow      = internallimiter.ErrInvalidWindow
	ErrInvalidMaxRequests = internallimiter.ErrInvalidMaxRequests
	ErrInvalidRefillRate  = internallimiter.ErrInvalidRefillRate
	ErrInvalidCapacity    = internallimiter.ErrInvalidCapacity
	ErrUnknownAlgorithm   = internallimiter.ErrUnknownAlgorithm
)

// Limiter is the core rate limiting interface.
type Limiter = internallimiter.Limiter

// Decision captures the result of a rate limit check.
type Decision = internallimiter.Decision

// Config selects an algorithm and its parameters.
type Config = internallimiter.Config

// RateLimiter dispatches to one configured strategy.
type RateLimiter = internallimiter.RateLimiter

// Observer receives every decision a RateLimiter makes.
type Observer = internallimiter.Observer

// ObserverFunc adapts a function to Observer.
type ObserverFunc = internallimiter.ObserverFunc

// Option configures a RateLimiter.
type Option = internallimiter.Option

// StoreOption configures the per-key state store.
type StoreOption = store.Option

// ParseAlgorithm accepts algorithm names case-insensitively, with dashes or
// underscores.
func ParseAlgorithm(s string) (Algorithm, error) {
	return internallimiter.ParseAlgorithm(s)
}

// New builds the strategy cfg selects. A nil clock uses real time.
func New(cfg Config, c clock.Clock, opts ...StoreOption) (Limiter, error) {
	return internallimiter.New(cfg, c, opts...)
}

// NewRateLimiter wraps an existing strategy.
func NewRateLimiter(strategy Limiter, opts ...Option) (*RateLimiter, error) {
	return internallimiter.NewRateLimiter(strategy, opts...)
}

// FromConfig builds a strategy from cfg and wraps it in a RateLimiter.
func FromConfig(cfg Config, c clock.Clock, storeOpts []StoreOption, opts ...Option) (*RateLimiter, error) {
	return internallimiter.FromConfig(cfg, c, storeOpts, opts...)
}

// WithLogger sets the entry decisions are logged to at debug level.
func WithLogger(l *log.Entry) Option { return internallimiter.WithLogger(l) }

// WithObserver adds an observer.
func WithObserver(o Observer) Option { return internallimiter.WithObserver(o) }

// WithShards sets the number of state store shards.
func WithShards(n int) StoreOption { return store.WithShards(n) }

// WithIdleTTL evicts keys untouched for d once a janitor runs.
func WithIdleTTL(d time.Duration) StoreOption { return store.WithIdleTTL(d) }
