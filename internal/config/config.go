// Package config loads throttle's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

// Environment variables read by ResolvePath and ApplyEnv.
const (
	EnvConfigPath = "THROTTLE_CONFIG"
	EnvAddr       = "THROTTLE_ADDR"
	EnvAlgorithm  = "THROTTLE_ALGORITHM"
	EnvRedisAddr  = "THROTTLE_REDIS_ADDR"
	EnvLogLevel   = "THROTTLE_LOG_LEVEL"
)

// DefaultPath is used when THROTTLE_CONFIG is unset.
const DefaultPath = "./throttle.yaml"

// Stats backends.
const (
	StatsNone   = "none"
	StatsMemory = "memory"
	StatsRedis  = "redis"
)

var ErrInvalidConfig = errors.New("throttle: invalid config")

// Config is the top-level configuration for a throttle process.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Limiter limiter.Config `yaml:"limiter"`
	Store   StoreConfig    `yaml:"store"`
	Stats   StatsConfig    `yaml:"stats"`
	Log     LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// TrustForwardedFor keys clients on the first X-Forwarded-For hop.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// StoreConfig tunes the per-key state store. IdleTTL 0 keeps keys forever.
type StoreConfig struct {
	Shards          int           `yaml:"shards"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// StatsConfig selects where decision counters go.
type StatsConfig struct {
	Backend string `yaml:"backend"`
	// TrackKeys keeps per-key counters in the memory backend. They are never
	// evicted, so leave it off when clients are unbounded.
	TrackKeys bool        `yaml:"track_keys"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection and key layout settings for stats.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Prefix      string        `yaml:"prefix"`
	TTL         time.Duration `yaml:"ttl"`
	TrackKeys   bool          `yaml:"track_keys"`
}

// LogConfig configures the standard logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Limiter: limiter.Config{
			Algorithm:   limiter.AlgorithmTokenBucket,
			Window:      time.Minute,
			MaxRequests: 10,
			RefillRate:  1,
			Capacity:    10,
		},
		Store: StoreConfig{
			JanitorInterval: time.Minute,
		},
		Stats: StatsConfig{
			Backend: StatsMemory,
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				DialTimeout: 5 * time.Second,
				Prefix:      "throttle:stats",
				TTL:         24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("%w: limiter: %w", ErrInvalidConfig, err)
	}
	if c.Store.Shards < 0 {
		return fmt.Errorf("%w: store.shards must be non-negative, got %d", ErrInvalidConfig, c.Store.Shards)
	}
	if c.Store.IdleTTL < 0 {
		return fmt.Errorf("%w: store.idle_ttl must be non-negative, got %s", ErrInvalidConfig, c.Store.IdleTTL)
	}
	if c.Store.IdleTTL > 0 && c.Store.JanitorInterval <= 0 {
		return fmt.Errorf("%w: store.janitor_interval must be positive when idle_ttl is set", ErrInvalidConfig)
	}

	switch c.Stats.Backend {
	case StatsNone, StatsMemory:
	case StatsRedis:
		if strings.TrimSpace(c.Stats.Redis.Addr) == "" {
			return fmt.Errorf("%w: stats.redis.addr is required for the redis backend", ErrInvalidConfig)
		}
		if c.Stats.Redis.TTL < 0 {
			return fmt.Errorf("%w: stats.redis.ttl must be non-negative", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown stats backend %q, must be one of: none, memory, redis", ErrInvalidConfig, c.Stats.Backend)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// LoadFile reads a YAML (or JSON) config file over the defaults.
// Fields not present in the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	if cfg.Limiter.Algorithm != "" {
		algo, errParse := limiter.ParseAlgorithm(string(cfg.Limiter.Algorithm))
		if errParse != nil {
			return cfg, fmt.Errorf("parse config file: %w", errParse)
		}
		cfg.Limiter.Algorithm = algo
	}
	return cfg, nil
}

// Load resolves the config path, reads it if it exists, and applies
// environment overrides. A missing file at the default path is not an error.
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != "" || os.Getenv(EnvConfigPath) != ""
	resolved := ResolvePath(path)

	cfg := Default()
	if _, errStat := os.Stat(resolved); errStat == nil {
		loaded, err := LoadFile(resolved)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		log.WithField("path", resolved).Debug("config: loaded")
	} else if explicit {
		return cfg, fmt.Errorf("read config file: %w", errStat)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from THROTTLE_* environment variables.
func (c *Config) ApplyEnv() error {
	if addr := strings.TrimSpace(os.Getenv(EnvAddr)); addr != "" {
		c.Server.Addr = addr
	}
	if raw := strings.TrimSpace(os.Getenv(EnvAlgorithm)); raw != "" {
		algo, err := limiter.ParseAlgorithm(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAlgorithm, err)
		}
		c.Limiter.Algorithm = algo
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		c.Stats.Redis.Addr = addr
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Log.Level = level
	}
	return nil
}

// ResolvePath normalizes the config path. An empty path falls back to
// THROTTLE_CONFIG and then DefaultPath.
func ResolvePath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = DefaultPath
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// WriteExample writes the default configuration as YAML to path.
func WriteExample(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode example config: %w", err)
	}
	header := []byte("# throttle configuration. Durations use Go syntax (\"30s\", \"1m\").\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
