package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse - rate limiting and request auditing for hireloop",
	Long: `Gatehouse enforces per-principal rate limits on abuse-prone job board
actions and keeps an append-only audit trail of request outcomes.

It fronts the hireloop API with:
  - Fixed-window quotas per (principal, action) over durable counters
  - Failed login lockout
  - A request audit trail with retention enforcement
  - A coarse per-address flood guard`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
