package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/config"
	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample traffic files and config",
		Long: `Generates sample data for testing and experimentation.

Use "generate traffic" to create a sample traffic JSON file.
Use "generate config" to create an example YAML config file.`,
	}
	cmd.AddCommand(newGenerateTrafficCmd(), newGenerateConfigCmd())
	return cmd
}

func newGenerateTrafficCmd() *cobra.Command {
	var (
		output   string
		count    int
		keys     int
		duration time.Duration
		pattern  string
		start    string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Generate a sample traffic JSON file",
		Long: `Creates a traffic file that "throttle replay" can read.

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate

The same --seed and --start always produce the same file.`,
		Example: `  throttle generate traffic --output traffic.json --count 100 --keys 5
  throttle generate traffic --output burst.json --count 200 --pattern burst --duration 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := recorder.GenerateOptions{
				Count:    count,
				Keys:     keys,
				Duration: duration,
				Pattern:  pattern,
				Seed:     seed,
				Start:    time.Now().UTC().Truncate(time.Second),
			}
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				opts.Start = t
			}
			if !cmd.Flags().Changed("seed") {
				opts.Seed = time.Now().UnixNano()
			}

			records, err := recorder.Generate(opts)
			if err != nil {
				return err
			}
			if err := recorder.WriteFile(output, records); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d traffic records to %s\n", len(records), output)
			fmt.Fprintf(out, "  Keys:     %d\n", keys)
			fmt.Fprintf(out, "  Duration: %s\n", duration)
			fmt.Fprintf(out, "  Pattern:  %s\n", pattern)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&output, "output", "traffic.json", "output file path")
	f.IntVar(&count, "count", 100, "number of records to generate")
	f.IntVar(&keys, "keys", 3, "number of distinct user keys")
	f.DurationVar(&duration, "duration", 5*time.Minute, "time span for generated traffic")
	f.StringVar(&pattern, "pattern", recorder.PatternSteady, "traffic pattern (steady, burst, ramp)")
	f.StringVar(&start, "start", "", "RFC 3339 time of the first record (default now)")
	f.Int64Var(&seed, "seed", 0, "random seed (default derived from the current time)")
	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Generate an example YAML config file",
		Example: `  throttle generate config --output throttle.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", config.DefaultPath, "output file path")
	return cmd
}
