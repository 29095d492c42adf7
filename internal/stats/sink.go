package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/config"
)

// closeGrace bounds how long closing a Redis sink waits for queued writes.
const closeGrace = 5 * time.Second

// New builds the sink selected by cfg. It returns a nil Sink for the "none"
// backend. The returned close function releases any connection and is never
// nil.
func New(ctx context.Context, cfg config.StatsConfig, clk clock.Clock) (Sink, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.StatsNone:
		return nil, noop, nil
	case config.StatsMemory, "":
		return NewMemorySink(cfg.TrackKeys), noop, nil
	case config.StatsRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			// Lets the sink's write timeout bound each pipeline.
			ContextTimeoutEnabled: true,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		sink := NewRedisSink(rdb,
			WithPrefix(cfg.Redis.Prefix),
			WithTTL(cfg.Redis.TTL),
			WithTrackKeys(cfg.Redis.TrackKeys),
			WithClock(clk),
		)
		closeFn := func() error {
			sink.Close(closeGrace)
			return rdb.Close()
		}
		return sink, closeFn, nil
	default:
		return nil, noop, fmt.Errorf("unknown stats backend %q", cfg.Backend)
	}
}
