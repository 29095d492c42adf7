package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/stress"
)

func newStressCmd() *cobra.Command {
	var (
		opts       limiterOptions
		workers    int
		keys       int
		rps        float64
		duration   time.Duration
		requests   int64
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Load test a limiter in process",
		Long: `Hammers an in-process limiter from many goroutines on the real clock and
reports admitted and denied counts and decision throughput.`,
		Example: `  throttle stress --workers 32 --keys 100 --duration 5s
  throttle stress --algorithm sliding_window --max-requests 50 --window 1s --rate 2000 --duration 10s
  throttle stress --requests 100000 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			rl, err := buildLimiter(cfg, clock.NewRealClock())
			if err != nil {
				return err
			}

			sc := stress.Config{
				Workers:  workers,
				Keys:     keys,
				Rate:     rps,
				Duration: duration,
				Requests: requests,
			}
			if requests > 0 && !cmd.Flags().Changed("duration") {
				sc.Duration = 0
			}
			res, err := stress.Run(cmd.Context(), rl, sc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printStressResult(out, describeLimit(cfg.Limiter), res)
			return nil
		},
	}

	opts.addFlags(cmd)
	f := cmd.Flags()
	f.IntVar(&workers, "workers", 8, "concurrent goroutines")
	f.IntVar(&keys, "keys", 10, "distinct keys, used round-robin")
	f.Float64Var(&rps, "rate", 0, "total requests per second (0 is unpaced)")
	f.DurationVar(&duration, "duration", 5*time.Second, "how long to run")
	f.Int64Var(&requests, "requests", 0, "stop after this many requests (replaces the default duration)")
	f.BoolVar(&outputJSON, "json", false, "output results as JSON")
	return cmd
}

func printStressResult(w io.Writer, limit string, r *stress.Result) {
	fmt.Fprintf(w, "=== throttle stress: %s ===\n\n", limit)
	fmt.Fprintf(w, "  Sent:       %d\n", r.Sent)
	fmt.Fprintf(w, "  Allowed:    %d\n", r.Allowed)
	fmt.Fprintf(w, "  Denied:     %d\n", r.Denied)
	fmt.Fprintf(w, "  Elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  Throughput: %.0f decisions/s\n", r.Throughput)

	if len(r.PerKey) == 0 || len(r.PerKey) > 20 {
		return
	}
	keys := make([]string, 0, len(r.PerKey))
	for k := range r.PerKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\n  Per key:")
	for _, k := range keys {
		c := r.PerKey[k]
		fmt.Fprintf(w, "    %s: %d allowed, %d denied\n", k, c.Allowed, c.Denied)
	}
}
