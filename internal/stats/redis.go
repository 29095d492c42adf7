package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

const (
	fieldAllowed = "allowed"
	fieldDenied  = "denied"
)

// RedisSink counts decisions in Redis hashes:
//
//	<prefix>:total                 cumulative, never expires
//	<prefix>:minute:YYYYMMDDHHMM   per-minute UTC bucket, expires after TTL
//	<prefix>:key:<key>             per key when enabled, expires after TTL
//
// Each hash has "allowed" and "denied" fields incremented with HINCRBY.
//
// Observe only queues the decision; a background writer sends it to Redis.
// When the queue is full the decision is dropped and counted. Close flushes
// the queue and stops the writer.
type RedisSink struct {
	rdb          redis.UniversalClient
	clock        clock.Clock
	prefix       string
	ttl          time.Duration
	trackKeys    bool
	queueSize    int
	writeTimeout time.Duration

	mu      sync.RWMutex // guards closed against sends on queue
	closed  bool
	queue   chan observation
	done    chan struct{}
	cancel  context.CancelFunc
	ctx     context.Context
	pending atomic.Int64 // queued or being written
	dropped atomic.Int64
}

type observation struct {
	key     string
	allowed bool
	at      time.Time
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithPrefix sets the key prefix. Surrounding colons are trimmed.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSink) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL sets the expiry of bucket and per-key hashes. Zero disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisSink) { s.ttl = d }
}

// WithTrackKeys enables per-key hashes.
func WithTrackKeys(track bool) RedisOption {
	return func(s *RedisSink) { s.trackKeys = track }
}

// WithQueueSize bounds the number of decisions waiting to be written.
func WithQueueSize(n int) RedisOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithWriteTimeout bounds each background write.
func WithWriteTimeout(d time.Duration) RedisOption {
	return func(s *RedisSink) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithClock sets the clock used to pick the minute bucket.
func WithClock(c clock.Clock) RedisOption {
	return func(s *RedisSink) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewRedisSink creates a sink writing through rdb and starts its writer.
// Write timeouts only apply if rdb was created with ContextTimeoutEnabled.
func NewRedisSink(rdb redis.UniversalClient, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		rdb:          rdb,
		clock:        clock.NewRealClock(),
		prefix:       "throttle:stats",
		ttl:          24 * time.Hour,
		queueSize:    1024,
		writeTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan observation, s.queueSize)
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.run()
	return s
}

func (s *RedisSink) run() {
	defer close(s.done)
	for ob := range s.queue {
		s.write(ob)
		s.pending.Add(-1)
	}
}

func (s *RedisSink) totalKey() string {
	return s.prefix + ":total"
}

func (s *RedisSink) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisSink) keyKey(key string) string {
	return s.prefix + ":key:" + key
}

func (s *RedisSink) write(ob observation) {
	if s.ctx.Err() != nil {
		s.dropped.Add(1)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	if err := s.record(ctx, ob.key, ob.allowed, ob.at); err != nil {
		log.WithError(err).WithField("key", ob.key).Warn("stats: redis record failed")
	}
}

// Record writes one decision in a single pipeline, synchronously.
func (s *RedisSink) Record(ctx context.Context, key string, allowed bool) error {
	return s.record(ctx, key, allowed, s.clock.Now())
}

func (s *RedisSink) record(ctx context.Context, key string, allowed bool, at time.Time) error {
	field := fieldDenied
	if allowed {
		field = fieldAllowed
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	bucket := s.minuteKey(at)
	pipe.HIncrBy(ctx, bucket, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucket, s.ttl)
	}

	if s.trackKeys {
		kk := s.keyKey(key)
		pipe.HIncrBy(ctx, kk, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, kk, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Observe queues d for the writer and never blocks. Decisions observed
// after Close, or while the queue is full, are dropped.
func (s *RedisSink) Observe(_ context.Context, key string, d limiter.Decision) {
	ob := observation{key: key, allowed: d.Allowed, at: s.clock.Now()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	s.pending.Add(1)
	select {
	case s.queue <- ob:
	default:
		s.pending.Add(-1)
		s.dropped.Add(1)
	}
}

// Dropped returns how many decisions were never written.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

// Flush waits until no decision is queued or being written, or ctx is done.
func (s *RedisSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.pending.Load() <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops accepting decisions and writes what is queued. If that takes
// longer than grace, the remaining decisions are dropped.
func (s *RedisSink) Close(grace time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.cancel()
		<-s.done
	}
	s.cancel()
	if n := s.Dropped(); n > 0 {
		log.WithField("dropped", n).Warn("stats: redis sink dropped decisions")
	}
}

// Minute returns the counters of the bucket containing at.
func (s *RedisSink) Minute(ctx context.Context, at time.Time) (Counters, error) {
	return s.counters(ctx, s.minuteKey(at))
}

func (s *RedisSink) Snapshot(ctx context.Context) (Snapshot, error) {
	total, err := s.counters(ctx, s.totalKey())
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Total: total}
	if !s.trackKeys {
		return snap, nil
	}

	snap.ByKey = make(map[string]Counters)
	keyPrefix := s.keyKey("")
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		c, errKey := s.counters(ctx, redisKey)
		if errKey != nil {
			return Snapshot{}, errKey
		}
		snap.ByKey[strings.TrimPrefix(redisKey, keyPrefix)] = c
	}
	if err := iter.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("scan %s*: %w", keyPrefix, err)
	}
	return snap, nil
}

func (s *RedisSink) counters(ctx context.Context, redisKey string) (Counters, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("hgetall %s: %w", redisKey, err)
	}
	var c Counters
	if v, ok := fields[fieldAllowed]; ok {
		if c.Allowed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Counters{}, fmt.Errorf("%s %s: %w", redisKey, fieldAllowed, err)
		}
	}
	if v, ok := fields[fieldDenied]; ok {
		if c.Denied, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Counters{}, fmt.Errorf("%s %s: %w", redisKey, fieldDenied, err)
		}
	}
	return c, nil
}
