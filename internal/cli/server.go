package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
	"github.com/SmitUplenchwar2687/throttle/internal/config"
	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
	"github.com/SmitUplenchwar2687/throttle/internal/logging"
	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
	"github.com/SmitUplenchwar2687/throttle/internal/server"
	"github.com/SmitUplenchwar2687/throttle/internal/stats"
)

func newServerCmd() *cobra.Command {
	var (
		opts         limiterOptions
		addr         string
		recordFile   string
		statsBackend string
		trustXFF     bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the rate limiter over HTTP",
		Long: `Starts an HTTP server that rate limits clients by address.

Endpoints:
  GET /                  Server info and current time
  GET /health            Health check, never limited
  GET /api/data          Sample resource, limited per client address
  GET /api/check/{key}   Decision for an explicit key
  GET /stats             Allowed/denied counters
  WS  /ws                Live decision events`,
		Example: `  throttle server
  throttle server --addr :9090 --algorithm sliding_window --max-requests 100 --window 1m
  throttle server --algorithm token_bucket --refill-rate 5 --capacity 20 --stats redis
  throttle server --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("stats") {
				cfg.Stats.Backend = statsBackend
			}
			if cmd.Flags().Changed("trust-forwarded-for") {
				cfg.Server.TrustForwardedFor = trustXFF
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, recordFile)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&recordFile, "record", "", "record limited traffic to this JSON file on shutdown")
	cmd.Flags().StringVar(&statsBackend, "stats", config.StatsMemory, "decision stats backend (none, memory, redis)")
	cmd.Flags().BoolVar(&trustXFF, "trust-forwarded-for", false, "key clients on the first X-Forwarded-For hop")

	return cmd
}

// runServer serves until ctx is cancelled, then shuts down and exports any
// recording.
func runServer(ctx context.Context, cfg config.Config, recordFile string) error {
	clk := clock.NewRealClock()
	logger := logging.Component("server")

	sink, closeStats, err := stats.New(ctx, cfg.Stats, clk)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := closeStats(); errClose != nil {
			logger.WithError(errClose).Warn("close stats backend")
		}
	}()

	limOpts := []limiter.Option{limiter.WithLogger(logging.Component("limiter"))}
	if sink != nil {
		limOpts = append(limOpts, limiter.WithObserver(sink))
	}
	rl, err := buildLimiter(cfg, clk, limOpts...)
	if err != nil {
		return err
	}
	if cfg.Store.IdleTTL > 0 {
		rl.StartJanitor(ctx, cfg.Store.JanitorInterval)
	}

	var rec *recorder.Recorder
	if recordFile != "" {
		rec = recorder.New(nil, recorder.WithClock(clk))
	}

	srv, err := server.New(server.Options{
		Addr:              cfg.Server.Addr,
		Limiter:           rl,
		Clock:             clk,
		Stats:             sink,
		Recorder:          rec,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"limit": describeLimit(cfg.Limiter),
		"stats": cfg.Stats.Backend,
	}).Info("rate limiter configured")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errShutdown := srv.Shutdown(shutdownCtx)

	if rec != nil {
		logger.WithFields(log.Fields{"records": rec.Len(), "file": recordFile}).Info("exporting recorded traffic")
		if err := rec.ExportFile(recordFile); err != nil {
			logger.WithError(err).Error("export recorded traffic")
		}
	}
	return errShutdown
}
