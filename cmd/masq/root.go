package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "masq",
	Short: "Aliasing proxy that keeps secrets out of development traffic",
	Long: `masq swaps sensitive values for opaque aliases at the proxy boundary.
It runs a forward and a reverse TCP proxy alongside a management API
for aliases, routes, and rewrite previews.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Config{
			Level:  rootFlags.logLevel,
			Format: rootFlags.logFormat,
		})
		if err != nil {
			return errors.Wrap(err, "initializing logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", getEnv("MASQ_LOG_LEVEL", "info"), "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logFormat, "log-format", getEnv("MASQ_LOG_FORMAT", "console"), "log format (console|json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
