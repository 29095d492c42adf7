package limiter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// Observer is notified of every decision a RateLimiter makes. Observe is
// called synchronously after the decision, outside any key lock, and must
// not block: observers that do I/O should queue the work.
type Observer interface {
	Observe(ctx context.Context, key string, d Decision)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, key string, d Decision)

func (f ObserverFunc) Observe(ctx context.Context, key string, d Decision) {
	f(ctx, key, d)
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithLogger logs denials at debug level on the given entry.
func WithLogger(l *log.Entry) Option {
	return func(r *RateLimiter) {
		r.logger = l
	}
}

// WithObserver appends an observer.
func WithObserver(o Observer) Option {
	return func(r *RateLimiter) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// RateLimiter forwards every decision to the one strategy it was built
// with. The strategy cannot be replaced afterwards.
type RateLimiter struct {
	strategy  Limiter
	logger    *log.Entry
	observers []Observer
}

// NewRateLimiter wraps strategy.
func NewRateLimiter(strategy Limiter, opts ...Option) (*RateLimiter, error) {
	if strategy == nil {
		return nil, ErrNilStrategy
	}
	r := &RateLimiter{strategy: strategy}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FromConfig builds the strategy described by cfg and wraps it.
func FromConfig(cfg Config, clk clock.Clock, storeOpts []store.Option, opts ...Option) (*RateLimiter, error) {
	strategy, err := New(cfg, clk, storeOpts...)
	if err != nil {
		return nil, err
	}
	return NewRateLimiter(strategy, opts...)
}

// Allow returns the strategy's decision for key.
func (r *RateLimiter) Allow(ctx context.Context, key string) Decision {
	d := r.strategy.Allow(ctx, key)

	if !d.Allowed && r.logger != nil {
		r.logger.WithFields(log.Fields{
			"key":      key,
			"limit":    d.Limit,
			"retry_at": d.RetryAt,
		}).Debug("rate limit: denied")
	}
	for _, o := range r.observers {
		o.Observe(ctx, key, d)
	}
	return d
}

// Admit reports whether the request identified by key may proceed. It is
// Allow without the metadata.
func (r *RateLimiter) Admit(ctx context.Context, key string) bool {
	return r.Allow(ctx, key).Allowed
}

// Strategy returns the wrapped strategy.
func (r *RateLimiter) Strategy() Limiter {
	return r.strategy
}

// Reset forgets key if the strategy supports it, and reports whether it did.
func (r *RateLimiter) Reset(key string) bool {
	rs, ok := r.strategy.(Resetter)
	if ok {
		rs.Reset(key)
	}
	return ok
}

// StartJanitor starts idle-key eviction if the strategy supports it.
func (r *RateLimiter) StartJanitor(ctx context.Context, interval time.Duration) bool {
	j, ok := r.strategy.(Janitor)
	if ok {
		j.StartJanitor(ctx, interval)
	}
	return ok
}
