// Package stress drives a limiter with concurrent synthetic load.
package stress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

// Config describes a load run. At least one of Duration and Requests must
// be set; the run stops at whichever comes first.
type Config struct {
	Workers  int
	Keys     int
	Rate     float64 // total requests per second; 0 means unpaced
	Duration time.Duration
	Requests int64
}

// Validate reports unusable settings.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.Keys <= 0:
		return fmt.Errorf("keys must be positive, got %d", c.Keys)
	case c.Rate < 0 || math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0):
		return fmt.Errorf("rate must be a finite non-negative number, got %v", c.Rate)
	case c.Duration < 0 || c.Requests < 0:
		return errors.New("duration and requests must be non-negative")
	case c.Duration == 0 && c.Requests == 0:
		return errors.New("one of duration or requests is required")
	}
	return nil
}

// Counts holds one key's outcome.
type Counts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Result summarizes a run.
type Result struct {
	Sent       int64             `json:"sent"`
	Allowed    int64             `json:"allowed"`
	Denied     int64             `json:"denied"`
	Elapsed    time.Duration     `json:"elapsed"`
	Throughput float64           `json:"throughput"` // decisions per second
	PerKey     map[string]Counts `json:"per_key"`
}

// Key returns the name of synthetic key i.
func Key(i int) string {
	return fmt.Sprintf("stress-%d", i)
}

// Run sends requests to lim from cfg.Workers goroutines, spreading them
// round-robin across cfg.Keys keys. Cancelling ctx ends the run early
// without error; the partial result is returned.
func Run(ctx context.Context, lim limiter.Limiter, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx := ctx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var pacer *rate.Limiter
	if cfg.Rate > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(math.Ceil(cfg.Rate/100))))
	}

	var seq atomic.Int64
	perWorker := make([][]Counts, cfg.Workers)
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < cfg.Workers; w++ {
		counts := make([]Counts, cfg.Keys)
		perWorker[w] = counts
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				if pacer != nil {
					if err := pacer.Wait(gctx); err != nil {
						return nil
					}
				}
				n := seq.Add(1)
				if cfg.Requests > 0 && n > cfg.Requests {
					return nil
				}
				k := int((n - 1) % int64(cfg.Keys))
				if lim.Allow(gctx, Key(k)).Allowed {
					counts[k].Allowed++
				} else {
					counts[k].Denied++
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Elapsed: time.Since(start),
		PerKey:  make(map[string]Counts, cfg.Keys),
	}
	for k := 0; k < cfg.Keys; k++ {
		var c Counts
		for _, counts := range perWorker {
			c.Allowed += counts[k].Allowed
			c.Denied += counts[k].Denied
		}
		if c.Allowed+c.Denied == 0 {
			continue
		}
		res.PerKey[Key(k)] = c
		res.Allowed += c.Allowed
		res.Denied += c.Denied
	}
	res.Sent = res.Allowed + res.Denied
	if secs := res.Elapsed.Seconds(); secs > 0 {
		res.Throughput = float64(res.Sent) / secs
	}

	log.WithFields(log.Fields{
		"sent":    res.Sent,
		"allowed": res.Allowed,
		"denied":  res.Denied,
		"elapsed": res.Elapsed,
	}).Debug("stress: run finished")
	return res, nil
}
