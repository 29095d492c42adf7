// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/SmitUplenchwar2687/throttle/internal/config"
)

// Setup applies level and format from cfg to the standard logger.
func Setup(cfg config.LogConfig) error {
	return Configure(log.StandardLogger(), cfg, os.Stderr)
}

// Configure applies cfg to logger and points it at out.
func Configure(logger *log.Logger, cfg config.LogConfig, out io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q, must be text or json", cfg.Format)
	}

	logger.SetLevel(level)
	logger.SetOutput(out)
	return nil
}

// Component returns an entry tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
