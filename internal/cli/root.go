// Package cli implements the throttle command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root throttle command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "throttle",
		Short: "Per-key rate limiting service and toolkit",
		Long: `throttle decides, per client key, whether a request may proceed under a
fixed window, sliding window or token bucket limit.

Serve the limiter over HTTP, simulate it on a virtual clock, replay
recorded traffic through it, or load test it.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServerCmd(),
		newTestCmd(),
		newReplayCmd(),
		newGenerateCmd(),
		newStressCmd(),
	)

	return root
}
