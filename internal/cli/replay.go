package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
	"github.com/SmitUplenchwar2687/throttle/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		opts       limiterOptions
		file       string
		speed      float64
		keys       []string
		endpoints  []string
		since      string
		until      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded traffic through a limiter",
		Long: `Replays recorded traffic in timestamp order through a limiter running on a
virtual clock that follows the record timestamps.

Speed: 0 = instant, 1 = real time, 10 = 10x`,
		Example: `  throttle replay --file traffic.json
  throttle replay --file traffic.json --algorithm sliding_window --max-requests 5 --window 10s
  throttle replay --file traffic.json --keys user-1,user-2 --endpoints /api
  throttle replay --file traffic.json --speed 100 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			filter := replay.Filter{Keys: keys, Endpoints: endpoints}
			if filter.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if filter.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}

			records, err := recorder.LoadFile(file)
			if err != nil {
				return fmt.Errorf("load traffic: %w", err)
			}
			vc := clock.NewVirtualClock(earliest(records))
			rl, err := buildLimiter(cfg, vc)
			if err != nil {
				return err
			}

			r := replay.New(rl, vc, speed, filter)
			r.LoadRecords(records)

			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s (%s) at %gx speed...\n\n", file, describeLimit(cfg.Limiter), speed)
			}

			var events []recorder.DecisionEvent
			summary, err := r.Run(cmd.Context(), func(ev recorder.DecisionEvent) {
				if outputJSON {
					events = append(events, ev)
					return
				}
				status := "ALLOW"
				if !ev.Decision.Allowed {
					status = "DENY "
				}
				fmt.Fprintf(out, "  %s [%s] key=%-12s %-24s remaining=%d/%d\n",
					ev.Time.Format("15:04:05.000"), status, ev.Record.Key, ev.Record.Endpoint,
					ev.Decision.Remaining, ev.Decision.Limit)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Events  []recorder.DecisionEvent `json:"events"`
					Summary *replay.Summary          `json:"summary"`
				}{events, summary})
			}
			printReplaySummary(out, summary)
			return nil
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&file, "file", "", "recorded traffic, JSON array or JSON lines (required)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real time, 10=10x)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "only replay these keys")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "only replay these endpoints, methods or path prefixes")
	cmd.Flags().StringVar(&since, "since", "", "only replay records at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "only replay records before this RFC 3339 time")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output events and summary as JSON")

	return cmd
}

func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// earliest returns the first timestamp in records, or the Unix epoch.
func earliest(records []recorder.TrafficRecord) time.Time {
	var first time.Time
	for _, r := range records {
		if first.IsZero() || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
	}
	if first.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return first
}

func printReplaySummary(w io.Writer, s *replay.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Replay Summary ---")
	fmt.Fprintf(w, "  Total records:  %d\n", s.TotalRecords)
	fmt.Fprintf(w, "  Matched filter: %d\n", s.Filtered)
	fmt.Fprintf(w, "  Replayed:       %d\n", s.Replayed)
	fmt.Fprintf(w, "  Allowed:        %d\n", s.Allowed)
	fmt.Fprintf(w, "  Denied:         %d\n", s.Denied)
	fmt.Fprintf(w, "  Virtual time:   %s\n", s.Duration)
	fmt.Fprintf(w, "  Wall time:      %s\n", s.WallDuration.Round(time.Millisecond))

	if len(s.PerKey) > 1 {
		keys := make([]string, 0, len(s.PerKey))
		for k := range s.PerKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\n  Per key:")
		for _, k := range keys {
			ks := s.PerKey[k]
			fmt.Fprintf(w, "    %s: %d allowed, %d denied\n", k, ks.Allowed, ks.Denied)
		}
	}
	if s.Replayed > 0 && s.Denied > 0 {
		fmt.Fprintf(w, "\n  Deny rate: %.1f%%\n", float64(s.Denied)/float64(s.Replayed)*100)
	}
}
