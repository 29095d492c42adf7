package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

func newTestCmd() *cobra.Command {
	var (
		opts        limiterOptions
		requests    int
		keys        []string
		fastForward time.Duration
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Simulate a limit on a virtual clock",
		Long: `Sends a batch of requests per key against a virtual clock, optionally
fast-forwards the clock, then sends a second batch. Hours of limiter
behaviour run in milliseconds.`,
		Example: `  throttle test --algorithm fixed_window --max-requests 10 --window 1m --requests 15
  throttle test --algorithm sliding_window --max-requests 5 --window 30s --fast-forward 1m
  throttle test --refill-rate 1 --capacity 5 --requests 6 --fast-forward 1s --keys a,b --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if requests <= 0 {
				return fmt.Errorf("--requests must be positive, got %d", requests)
			}
			if fastForward < 0 {
				return fmt.Errorf("--fast-forward must be non-negative, got %s", fastForward)
			}
			if len(keys) == 0 {
				keys = []string{"test-user"}
			}

			vc := clock.NewVirtualClock(time.Now().UTC().Truncate(time.Second))
			rl, err := buildLimiter(cfg, vc)
			if err != nil {
				return err
			}

			result := runTest(vc, rl, keys, requests, fastForward)
			result.Limit = describeLimit(cfg.Limiter)

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printTestResult(out, &result)
			return nil
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().IntVar(&requests, "requests", 15, "requests per key in each batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated keys to test")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "virtual time to skip between batches (0 sends one batch)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// TestResult is the output of a test run.
type TestResult struct {
	Limit       string             `json:"limit"`
	FastForward string             `json:"fast_forward,omitempty"`
	Batches     []BatchResult      `json:"batches"`
	Summary     map[string]Summary `json:"summary"`
}

// BatchResult holds one batch of decisions.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      time.Time        `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is a single check.
type DecisionRecord struct {
	Key      string           `json:"key"`
	Decision limiter.Decision `json:"decision"`
}

// Summary aggregates one key.
type Summary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
}

func runTest(vc *clock.VirtualClock, lim limiter.Limiter, keys []string, requests int, fastForward time.Duration) TestResult {
	result := TestResult{Summary: make(map[string]Summary)}
	result.Batches = append(result.Batches, runBatch(vc, lim, "Initial requests", keys, requests, result.Summary))

	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()
		label := fmt.Sprintf("After fast-forward %s", fastForward)
		result.Batches = append(result.Batches, runBatch(vc, lim, label, keys, requests, result.Summary))
	}
	return result
}

// runBatch sends requests rounds, one request per key per round.
func runBatch(vc *clock.VirtualClock, lim limiter.Limiter, label string, keys []string, requests int, summary map[string]Summary) BatchResult {
	ctx := context.Background()
	batch := BatchResult{Label: label, Time: vc.Now()}
	for i := 0; i < requests; i++ {
		for _, key := range keys {
			d := lim.Allow(ctx, key)
			batch.Decisions = append(batch.Decisions, DecisionRecord{Key: key, Decision: d})

			s := summary[key]
			s.TotalRequests++
			if d.Allowed {
				s.Allowed++
			} else {
				s.Denied++
			}
			summary[key] = s
		}
	}
	return batch
}

func printTestResult(w io.Writer, r *TestResult) {
	fmt.Fprintf(w, "=== throttle test: %s ===\n\n", r.Limit)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time.Format(time.RFC3339))
		for i, dr := range batch.Decisions {
			status := "ALLOW"
			if !dr.Decision.Allowed {
				status = "DENY "
			}
			fmt.Fprintf(w, "  #%03d [%s] key=%s remaining=%d/%d\n",
				i+1, status, dr.Key, dr.Decision.Remaining, dr.Decision.Limit)
		}
		fmt.Fprintln(w)
	}

	keys := make([]string, 0, len(r.Summary))
	for k := range r.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "--- Summary ---")
	for _, key := range keys {
		s := r.Summary[key]
		fmt.Fprintf(w, "  %s: %d total, %d allowed, %d denied\n", key, s.TotalRequests, s.Allowed, s.Denied)
	}

	if r.FastForward == "" || len(r.Batches) < 2 {
		return
	}
	denied, recovered := false, false
	for _, dr := range r.Batches[0].Decisions {
		denied = denied || !dr.Decision.Allowed
	}
	for _, dr := range r.Batches[1].Decisions {
		recovered = recovered || dr.Decision.Allowed
	}
	if denied && recovered {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintf(w, "Denied requests were admitted again after %s.\n", r.FastForward)
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
