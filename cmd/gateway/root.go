package main

import (
	"fmt"
	"os"

	"admission-gateway/internal/config"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Admission gateway - rate limiting reverse proxy",
	Long: `gateway puts named rate limit policies in front of an upstream HTTP service.

Counters live in Redis so every replica shares the same budget. Each policy
has a budget of requests per window and a block duration applied once the
budget is exceeded.

Configuration:
  Loaded from admission-gateway.yaml in the current directory,
  $HOME/.admission-gateway/ or /etc/admission-gateway/, and from a .env file.
  Environment variables override values with the GATEWAY_ prefix.
  Example: GATEWAY_RATE_LIMIT_FAILURE_MODE=closed

Commands:
  serve     Start the gateway
  status    Show the counter state of a key under a policy
  reset     Clear the counter and block of a key under a policy
  policies  Print the effective policy set`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./admission-gateway.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.NewViper(cfgFile))
}
