package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Limiter.Algorithm != limiter.AlgorithmTokenBucket {
		t.Errorf("default algorithm = %q, want %q", cfg.Limiter.Algorithm, limiter.AlgorithmTokenBucket)
	}
	if cfg.Limiter.Capacity != 10 {
		t.Errorf("default capacity = %d, want 10", cfg.Limiter.Capacity)
	}
	if cfg.Stats.Backend != StatsMemory {
		t.Errorf("default stats backend = %q, want memory", cfg.Stats.Backend)
	}
	if cfg.Store.IdleTTL != 0 {
		t.Errorf("default idle ttl = %v, want 0 (disabled)", cfg.Store.IdleTTL)
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestValidate_AllAlgorithms(t *testing.T) {
	for _, algo := range limiter.Algorithms {
		cfg := Default()
		cfg.Limiter.Algorithm = algo
		if err := cfg.Validate(); err != nil {
			t.Errorf("algorithm %q should be valid, got %v", algo, err)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		cause  error
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, nil},
		{"bad algorithm", func(c *Config) { c.Limiter.Algorithm = "bogus" }, limiter.ErrUnknownAlgorithm},
		{"zero window", func(c *Config) {
			c.Limiter.Algorithm = limiter.AlgorithmFixedWindow
			c.Limiter.Window = 0
		}, limiter.ErrInvalidWindow},
		{"zero max requests", func(c *Config) {
			c.Limiter.Algorithm = limiter.AlgorithmSlidingWindow
			c.Limiter.MaxRequests = 0
		}, limiter.ErrInvalidMaxRequests},
		{"negative refill", func(c *Config) { c.Limiter.RefillRate = -1 }, limiter.ErrInvalidRefillRate},
		{"zero capacity", func(c *Config) { c.Limiter.Capacity = 0 }, limiter.ErrInvalidCapacity},
		{"negative shards", func(c *Config) { c.Store.Shards = -1 }, nil},
		{"negative idle ttl", func(c *Config) { c.Store.IdleTTL = -time.Second }, nil},
		{"idle ttl without janitor", func(c *Config) {
			c.Store.IdleTTL = time.Minute
			c.Store.JanitorInterval = 0
		}, nil},
		{"bad stats backend", func(c *Config) { c.Stats.Backend = "bogus" }, nil},
		{"redis without addr", func(c *Config) {
			c.Stats.Backend = StatsRedis
			c.Stats.Redis.Addr = ""
		}, nil},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, nil},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Errorf("Validate() error = %v, want it to wrap %v", err, tc.cause)
			}
		})
	}
}

func TestValidate_TokenBucketIgnoresWindow(t *testing.T) {
	cfg := Default()
	cfg.Limiter.Window = 0
	cfg.Limiter.MaxRequests = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("token bucket should not need window fields, got %v", err)
	}
}

func TestLoadFile_Full(t *testing.T) {
	path := writeFile(t, "throttle.yaml", `
server:
  addr: ":9090"
  trust_forwarded_for: true
limiter:
  algorithm: Sliding-Window
  window: 30s
  max_requests: 100
store:
  shards: 16
  idle_ttl: 10m
  janitor_interval: 30s
stats:
  backend: redis
  redis:
    addr: 127.0.0.1:6380
    db: 2
    prefix: rl
    ttl: 1h
    track_keys: true
log:
  level: debug
  format: json
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" || !cfg.Server.TrustForwardedFor {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Limiter.Algorithm != limiter.AlgorithmSlidingWindow {
		t.Errorf("algorithm = %q, want %q", cfg.Limiter.Algorithm, limiter.AlgorithmSlidingWindow)
	}
	if cfg.Limiter.Window != 30*time.Second {
		t.Errorf("window = %v, want 30s", cfg.Limiter.Window)
	}
	if cfg.Limiter.MaxRequests != 100 {
		t.Errorf("max_requests = %d, want 100", cfg.Limiter.MaxRequests)
	}
	if cfg.Store.Shards != 16 || cfg.Store.IdleTTL != 10*time.Minute || cfg.Store.JanitorInterval != 30*time.Second {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Stats.Backend != StatsRedis || cfg.Stats.Redis.Addr != "127.0.0.1:6380" || cfg.Stats.Redis.DB != 2 {
		t.Errorf("stats = %+v", cfg.Stats)
	}
	if cfg.Stats.Redis.TTL != time.Hour || !cfg.Stats.Redis.TrackKeys || cfg.Stats.Redis.Prefix != "rl" {
		t.Errorf("stats.redis = %+v", cfg.Stats.Redis)
	}
	// Unset nested fields keep defaults.
	if cfg.Stats.Redis.DialTimeout != 5*time.Second {
		t.Errorf("dial_timeout = %v, want default 5s", cfg.Stats.Redis.DialTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid, got %v", err)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, "throttle.json", `{"limiter": {"algorithm": "fixed_window", "max_requests": 42}}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Limiter.Algorithm != limiter.AlgorithmFixedWindow {
		t.Errorf("algorithm = %q", cfg.Limiter.Algorithm)
	}
	if cfg.Limiter.MaxRequests != 42 {
		t.Errorf("max_requests = %d, want 42", cfg.Limiter.MaxRequests)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr should stay default, got %q", cfg.Server.Addr)
	}
	if cfg.Limiter.Window != time.Minute {
		t.Errorf("window should stay default, got %v", cfg.Limiter.Window)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "limiter: [unclosed",
		"bad duration":  "limiter:\n  window: not-a-duration\n",
		"bad algorithm": "limiter:\n  algorithm: leaky\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeFile(t, "throttle.yaml", content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadFile("/nonexistent/throttle.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAddr, ":7070")
	t.Setenv(EnvAlgorithm, "fixed-window")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvLogLevel, "warn")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Limiter.Algorithm != limiter.AlgorithmFixedWindow {
		t.Errorf("algorithm = %q", cfg.Limiter.Algorithm)
	}
	if cfg.Stats.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Stats.Redis.Addr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}

	t.Setenv(EnvAlgorithm, "bogus")
	if err := cfg.ApplyEnv(); !errors.Is(err, limiter.ErrUnknownAlgorithm) {
		t.Errorf("ApplyEnv() error = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	want, _ := filepath.Abs(DefaultPath)
	if got := ResolvePath(""); got != want {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, want)
	}

	t.Setenv(EnvConfigPath, "/etc/throttle/config.yaml")
	if got := ResolvePath("  "); got != "/etc/throttle/config.yaml" {
		t.Errorf("ResolvePath with env = %q", got)
	}
	if got := ResolvePath("/tmp/x.yaml"); got != "/tmp/x.yaml" {
		t.Errorf("explicit path should win, got %q", got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvAddr, ":6060")

	path := writeFile(t, "throttle.yaml", "server:\n  addr: \":9999\"\nlog:\n  level: error\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":6060" {
		t.Errorf("env should override file, addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log level = %q, want error from file", cfg.Log.Level)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func TestLoad_MissingDefaultIsFine(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Errorf("addr = %q, want default", cfg.Server.Addr)
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := WriteExample(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config should be valid, got %v", err)
	}
	if cfg != Default() {
		t.Errorf("example round-trip = %+v, want defaults", cfg)
	}
}
