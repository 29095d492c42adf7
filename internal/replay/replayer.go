// Package replay feeds recorded traffic through a limiter on a virtual clock.
package replay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
)

var ErrNoRecords = errors.New("replay: no records loaded")

// Replayer replays recorded traffic through a limiter. The limiter must read
// time from the same VirtualClock, which the replayer moves to each
// record's timestamp before asking for a decision.
type Replayer struct {
	records []recorder.TrafficRecord
	limiter limiter.Limiter
	clock   *clock.VirtualClock
	filter  Filter
	// speed scales real-time pauses between records: 1 is real time,
	// 10 is ten times faster, 0 replays without pausing.
	speed float64
	wall  clock.Clock
}

// Summary aggregates a replay.
type Summary struct {
	TotalRecords int                   `json:"total_records"`
	Filtered     int                   `json:"filtered"`
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Denied       int                   `json:"denied"`
	Duration     time.Duration         `json:"duration"`      // virtual span
	WallDuration time.Duration         `json:"wall_duration"` // real time taken
	PerKey       map[string]KeySummary `json:"per_key"`
}

// KeySummary holds one key's totals.
type KeySummary struct {
	Allowed     int       `json:"allowed"`
	Denied      int       `json:"denied"`
	FirstDenied time.Time `json:"first_denied,omitempty"`
}

func (s *Summary) add(key string, d limiter.Decision, at time.Time) {
	s.Replayed++
	ks := s.PerKey[key]
	if d.Allowed {
		s.Allowed++
		ks.Allowed++
	} else {
		s.Denied++
		ks.Denied++
		if ks.FirstDenied.IsZero() {
			ks.FirstDenied = at
		}
	}
	s.PerKey[key] = ks
}

// New creates a replayer. A negative speed is treated as 0.
func New(lim limiter.Limiter, vc *clock.VirtualClock, speed float64, filter Filter) *Replayer {
	if speed < 0 {
		speed = 0
	}
	return &Replayer{
		limiter: lim,
		clock:   vc,
		speed:   speed,
		filter:  filter,
		wall:    clock.NewRealClock(),
	}
}

// LoadFile reads records from a JSON array or JSON lines file.
func (r *Replayer) LoadFile(path string) error {
	records, err := recorder.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords sets the records directly.
func (r *Replayer) LoadRecords(records []recorder.TrafficRecord) {
	r.records = slices.Clone(records)
}

// Run replays the loaded records in timestamp order and calls cb, if
// non-nil, with each decision. Records stamped earlier than the virtual
// clock are decided at the clock's current time.
func (r *Replayer) Run(ctx context.Context, cb func(recorder.DecisionEvent)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, ErrNoRecords
	}

	sorted := slices.Clone(r.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var selected []recorder.TrafficRecord
	for _, rec := range sorted {
		if r.filter.Match(rec) {
			selected = append(selected, rec)
		}
	}

	summary := &Summary{
		TotalRecords: len(sorted),
		Filtered:     len(selected),
		PerKey:       make(map[string]KeySummary),
	}
	if len(selected) == 0 {
		return summary, nil
	}

	wallStart := r.wall.Now()
	for i, rec := range selected {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if i > 0 {
			if err := r.pause(ctx, rec.Timestamp.Sub(selected[i-1].Timestamp)); err != nil {
				return summary, err
			}
		}
		if rec.Timestamp.After(r.clock.Now()) {
			r.clock.Set(rec.Timestamp)
		}

		now := r.clock.Now()
		d := r.limiter.Allow(ctx, rec.Key)
		summary.add(rec.Key, d, now)
		if cb != nil {
			cb(recorder.DecisionEvent{Record: rec, Decision: d, Time: now})
		}
	}

	summary.Duration = selected[len(selected)-1].Timestamp.Sub(selected[0].Timestamp)
	summary.WallDuration = r.wall.Since(wallStart)
	log.WithFields(log.Fields{
		"replayed": summary.Replayed,
		"allowed":  summary.Allowed,
		"denied":   summary.Denied,
	}).Debug("replay: finished")
	return summary, nil
}

// pause waits gap/speed of real time. Pauses under a millisecond are skipped.
func (r *Replayer) pause(ctx context.Context, gap time.Duration) error {
	if r.speed == 0 || gap <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.speed)
	if scaled < time.Millisecond {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.wall.After(scaled):
		return nil
	}
}
