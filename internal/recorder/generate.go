package recorder

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Traffic patterns understood by Generate.
const (
	PatternSteady = "steady" // evenly spaced
	PatternBurst  = "burst"  // four tight bursts with quiet gaps
	PatternRamp   = "ramp"   // density grows toward the end
)

// Endpoints used for generated traffic.
var Endpoints = []string{
	"GET /api/data",
	"GET /api/users",
	"POST /api/events",
	"GET /api/search",
	"PUT /api/settings",
}

// GenerateOptions controls synthetic traffic.
type GenerateOptions struct {
	Count    int
	Keys     int
	Duration time.Duration
	Pattern  string
	Start    time.Time
	Seed     int64
}

// Generate produces synthetic traffic sorted by timestamp. The same options
// always yield the same records, IDs included.
func Generate(opts GenerateOptions) ([]TrafficRecord, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.Keys <= 0 {
		return nil, fmt.Errorf("keys must be positive, got %d", opts.Keys)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	keys := make([]string, opts.Keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("user-%d", i+1)
	}

	var offsets []time.Duration
	switch opts.Pattern {
	case PatternSteady, "":
		offsets = steadyOffsets(opts.Count, opts.Duration)
	case PatternBurst:
		offsets = burstOffsets(rng, opts.Count, opts.Duration)
	case PatternRamp:
		offsets = rampOffsets(opts.Count, opts.Duration)
	default:
		return nil, fmt.Errorf("unknown pattern %q, must be one of: steady, burst, ramp", opts.Pattern)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	records := make([]TrafficRecord, len(offsets))
	for i, off := range offsets {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return nil, err
		}
		records[i] = TrafficRecord{
			ID:        id.String(),
			Timestamp: opts.Start.Add(off),
			Key:       keys[rng.Intn(len(keys))],
			Endpoint:  Endpoints[rng.Intn(len(Endpoints))],
		}
	}
	return records, nil
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	step := dur / time.Duration(count)
	out := make([]time.Duration, count)
	for i := range out {
		out[i] = time.Duration(i) * step
	}
	return out
}

func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	const bursts = 4
	gap := dur / bursts
	spread := time.Second
	if gap < spread {
		spread = gap
	}

	out := make([]time.Duration, 0, count)
	for i := 0; i < count; i++ {
		b := time.Duration(i % bursts)
		jitter := time.Duration(rng.Int63n(int64(spread)))
		out = append(out, b*gap+jitter)
	}
	return out
}

// rampOffsets places record i at sqrt(i/count) of dur, so gaps shrink over time.
func rampOffsets(count int, dur time.Duration) []time.Duration {
	out := make([]time.Duration, count)
	for i := range out {
		frac := float64(i) / float64(count)
		out[i] = time.Duration(math.Sqrt(frac) * float64(dur))
	}
	return out
}
