package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/config"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
	"github.com/SmitUplenchwar2687/throttle/internal/logging"
	"github.com/SmitUplenchwar2687/throttle/internal/store"
)

// limiterOptions are the flags shared by every command that builds a limiter.
// Flags the user sets explicitly override the config file.
type limiterOptions struct {
	configPath  string
	algorithm   string
	window      time.Duration
	maxRequests int
	refillRate  float64
	capacity    int
	shards      int
	idleTTL     time.Duration
	logLevel    string
}

func (o *limiterOptions) addFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "config file (default $THROTTLE_CONFIG or ./throttle.yaml)")
	f.StringVar(&o.algorithm, "algorithm", string(def.Limiter.Algorithm), "rate limiting algorithm (fixed_window, sliding_window, token_bucket)")
	f.DurationVar(&o.window, "window", def.Limiter.Window, "window length (fixed_window, sliding_window)")
	f.IntVar(&o.maxRequests, "max-requests", def.Limiter.MaxRequests, "requests admitted per window (fixed_window, sliding_window)")
	f.Float64Var(&o.refillRate, "refill-rate", def.Limiter.RefillRate, "tokens added per second (token_bucket)")
	f.IntVar(&o.capacity, "capacity", def.Limiter.Capacity, "bucket size (token_bucket)")
	f.IntVar(&o.shards, "shards", store.DefaultShards, "state store shard count")
	f.DurationVar(&o.idleTTL, "idle-ttl", 0, "evict keys idle this long (0 keeps them)")
	f.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// load reads the config, applies explicitly set flags, validates it and
// configures logging.
func (o *limiterOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("algorithm") {
		algo, errParse := limiter.ParseAlgorithm(o.algorithm)
		if errParse != nil {
			return cfg, errParse
		}
		cfg.Limiter.Algorithm = algo
	}
	if changed("window") {
		cfg.Limiter.Window = o.window
	}
	if changed("max-requests") {
		cfg.Limiter.MaxRequests = o.maxRequests
	}
	if changed("refill-rate") {
		cfg.Limiter.RefillRate = o.refillRate
	}
	if changed("capacity") {
		cfg.Limiter.Capacity = o.capacity
	}
	if changed("shards") {
		cfg.Store.Shards = o.shards
	}
	if changed("idle-ttl") {
		cfg.Store.IdleTTL = o.idleTTL
	}
	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func storeOptions(cfg config.StoreConfig) []store.Option {
	var opts []store.Option
	if cfg.Shards > 0 {
		opts = append(opts, store.WithShards(cfg.Shards))
	}
	if cfg.IdleTTL > 0 {
		opts = append(opts, store.WithIdleTTL(cfg.IdleTTL))
	}
	return opts
}

func buildLimiter(cfg config.Config, clk clock.Clock, opts ...limiter.Option) (*limiter.RateLimiter, error) {
	rl, err := limiter.FromConfig(cfg.Limiter, clk, storeOptions(cfg.Store), opts...)
	if err != nil {
		return nil, fmt.Errorf("build limiter: %w", err)
	}
	return rl, nil
}

// describeLimit renders the active limit for humans.
func describeLimit(c limiter.Config) string {
	if c.Algorithm == limiter.AlgorithmTokenBucket {
		return fmt.Sprintf("%s capacity=%d refill=%g/s", c.Algorithm, c.Capacity, c.RefillRate)
	}
	return fmt.Sprintf("%s max=%d per %s", c.Algorithm, c.MaxRequests, c.Window)
}
